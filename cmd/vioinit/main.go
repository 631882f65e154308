package main

import "github.com/MeKo-Tech/vioinit/cmd/vioinit/cmd"

func main() {
	cmd.Execute()
}
