package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Iron-Ham/sprint/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrSprintFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
