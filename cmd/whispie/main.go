// Package main is the entrypoint for the whispie binary.
package main

import "github.com/whispie/whispie/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
