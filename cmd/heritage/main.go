// Command heritage registers and inspects heritage collection records.
package main

import (
	"fmt"
	"os"

	"heritagestore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "heritage:", err)
		os.Exit(1)
	}
}
