// Package main provides the aiservice binary.
//
// Usage:
//
//	aiservice [flags] <command>
//
// Commands:
//
//	serve        - run the HTTP gateway and the gRPC health service
//	models pull  - download the artifacts listed under models:
//	version      - print the build version
package main

import (
	"fmt"
	"os"

	"github.com/notflix/aiservice/cmd/aiservice/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
