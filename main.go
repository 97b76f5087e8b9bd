package main

import (
	"os"

	"github.com/ziadkadry99/docintake/cmd"
)

func main() {
	os.Exit(cmd.ExitCode(cmd.Execute()))
}
