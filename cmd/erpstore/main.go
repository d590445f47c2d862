package main

import (
	"os"

	"github.com/roach88/erpstore/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
