// Package main provides the pricetrack binary entry point.
// Pricetrack tracks product price histories: it scrapes product pages
// for their embedded price charts, stores the series locally and
// exports CSV files for analysis.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/tracklab/pricetrack/commands"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := commands.NewRootCommand(Version, BuildTime).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
