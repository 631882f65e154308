// Package support holds the step definitions of the CLI feature suite.
package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStderr   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	// Test environment
	WorkingDir string
	TempDir    string
	EnvVars    []string
}

// ProjectRoot walks up from the working directory to the directory holding go.mod.
func ProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found")
		}
		dir = parent
	}
}

// NewTestContext creates a new test context with its own temporary directory.
func NewTestContext() (*TestContext, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}
	tempDir, err := os.MkdirTemp("", "vioinit-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		WorkingDir: root,
		TempDir:    tempDir,
		// keep the suite independent of config files on the host
		EnvVars: []string{"HOME=" + tempDir, "XDG_CONFIG_HOME=" + tempDir},
	}, nil
}

// Cleanup removes the scenario's temporary directory.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.TempDir == "" {
		return nil
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		return fmt.Errorf("failed to remove temp directory: %w", err)
	}
	return nil
}

// expand replaces {tmp} with the scenario directory and expands glob patterns.
func (testCtx *TestContext) expand(command string) ([]string, error) {
	command = strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)
	var args []string
	for _, field := range strings.Fields(command) {
		if !strings.ContainsAny(field, "*?[") {
			args = append(args, field)
			continue
		}
		matches, err := filepath.Glob(field)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", field, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matches nothing", field)
		}
		args = append(args, matches...)
	}
	return args, nil
}
