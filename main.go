package main

import (
	"os"

	"github.com/02061997/ai-tutor-experiment/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
