package main

import (
	"os"

	"github.com/mailsplit/mailsplit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
