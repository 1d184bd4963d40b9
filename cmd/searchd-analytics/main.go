package main

import (
	"fmt"
	"os"

	"github.com/searchd/analytics/cli"
)

func main() {
	var rootCmd cli.RootCmd
	err := rootCmd.Command().Invoke().WithOS().Run()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
