package main

import "github.com/onemirror/onemirror/internal/cli"

func main() {
	cli.Execute()
}
