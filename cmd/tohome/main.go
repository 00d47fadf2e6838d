// Package main provides the entrypoint of the to-home distance service.
//
// Usage:
//
//	tohome                  run the sensors and the control API
//	tohome token [flags]    print an API access token
package main

import (
	"fmt"
	"os"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "tohome token:", err)
			os.Exit(2)
		}
		return
	}
	serve()
}
