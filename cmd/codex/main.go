package main

import "github.com/mvp-joe/project-codex/internal/cli"

func main() {
	cli.Execute()
}
