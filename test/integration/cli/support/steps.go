package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// RegisterSteps registers every step definition.
func (testCtx *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a synthetic sequence of (\d+) frames in "([^"]*)"$`, testCtx.aSyntheticSequence)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the error output should contain "([^"]*)"$`, testCtx.theErrorOutputShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON field "([^"]*)" should equal (\d+)$`, testCtx.theJSONFieldShouldEqual)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the directory "([^"]*)" should contain (\d+) files matching "([^"]*)"$`,
		testCtx.theDirectoryShouldContainFiles)
}

func (testCtx *TestContext) aSyntheticSequence(frames int, dir string) error {
	if err := testCtx.iRunCommand(fmt.Sprintf("vioinit synth --out {tmp}/%s --frames %d", dir, frames)); err != nil {
		return err
	}
	return testCtx.theCommandShouldSucceed()
}

func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.EnvVars = append(testCtx.EnvVars, name+"="+value)
	return nil
}

// iRunCommand executes command, keeping stdout and stderr apart.
func (testCtx *TestContext) iRunCommand(command string) error {
	args, err := testCtx.expand(command)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("empty command")
	}
	testCtx.LastCommand = strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	testCtx.LastDuration = time.Since(start)
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err

	testCtx.LastExitCode = 0
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command %q failed with exit code %d: %w\nStderr: %s",
			testCtx.LastCommand, testCtx.LastExitCode, testCtx.LastError, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command %q succeeded when it should have failed\nOutput: %s",
			testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(s string) error {
	if !strings.Contains(testCtx.LastOutput, s) {
		return fmt.Errorf("output does not contain %q\nOutput: %s", s, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorOutputShouldContain(s string) error {
	if !strings.Contains(testCtx.LastStderr, s) {
		return fmt.Errorf("stderr does not contain %q\nStderr: %s", s, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(testCtx.LastOutput)) {
		return fmt.Errorf("output is not valid JSON: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theJSONFieldShouldEqual(field string, want int) error {
	var doc map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastOutput), &doc); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}
	got, ok := doc[field].(float64)
	if !ok {
		return fmt.Errorf("field %q missing or not a number in %s", field, testCtx.LastOutput)
	}
	if int(got) != want {
		return fmt.Errorf("field %q is %v, want %d", field, got, want)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(path string) error {
	path = strings.ReplaceAll(path, "{tmp}", testCtx.TempDir)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s: %w", path, err)
	}
	return nil
}

func (testCtx *TestContext) theDirectoryShouldContainFiles(dir string, want int, pattern string) error {
	dir = strings.ReplaceAll(dir, "{tmp}", testCtx.TempDir)
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return err
	}
	if len(matches) != want {
		return fmt.Errorf("%s holds %d files matching %s, want %d", dir, len(matches), pattern, want)
	}
	return nil
}
