package main

import (
	"os"

	"github.com/Faiz-k/Intentify/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
