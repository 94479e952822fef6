// rp is the operator CLI for the reelpress pipeline.
package main

import (
	"os"

	"github.com/reelworks/reelpress/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
