// FILE: callwisp/src/cmd/callwisp/main.go
package main

import (
	"errors"
	"fmt"
	"os"

	"callwisp/src/cmd/callwisp/commands"
)

func main() {
	commands.InitOutputHandler(false)

	router := commands.NewCommandRouter()
	err := router.Route(os.Args)
	if err == nil {
		os.Exit(0)
	}

	// Exit codes of proxied commands pass through silently
	var exitErr *commands.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
