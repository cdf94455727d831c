// Command codeqa answers questions about a live-indexed codebase.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"codeqa/pkg/cli"
)

func main() {
	// A missing .env is fine; real environment variables always win.
	_ = godotenv.Load()
	os.Exit(cli.Execute())
}
