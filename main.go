package main

import (
	"os"

	"github.com/harrisonrobin/sheetsync/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
