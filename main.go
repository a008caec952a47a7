package main

import (
	"github.com/xkilldash9x/suture/cmd"
)

// main hands control to the root command, which handles parsing, configuration
// and the exit status.
func main() {
	cmd.Execute()
}
