package main

import (
	"os"

	"github.com/solatis/dispatchkeeper/cmd/dispatchkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
