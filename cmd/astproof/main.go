// Command astproof verifies LLM-predicted exclusion candidates against an
// independent AST analyzer and declarative rules.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/ppiankov/astproof/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		os.Exit(1)
	}
}
