package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
