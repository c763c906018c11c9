package main

import (
	"os"

	"github.com/msto63/krishisaathi/cmd/krishi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
