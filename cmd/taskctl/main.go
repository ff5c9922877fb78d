// Command taskctl is the control-plane CLI: the board, governance, budget,
// acceptance, recovery, dispatcher and scheduler components wired behind a
// cobra command tree.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}
