// log-visibility filters container logs by channel.
package main

import (
	"os"

	"github.com/harryosmar/log-visibility/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
