package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"chartdrill/internal/cli"
)

func main() {
	// A missing .env is fine; CHARTDRILL_* may come from the environment.
	_ = godotenv.Load()

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
