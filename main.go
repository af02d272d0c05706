package main

import (
	"os"

	"github.com/signalnine/fiveworlds/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
