package main

import (
	"fmt"
	"os"

	"github.com/xpzchen/image-manager/internal/cli"
)

const appName = "image-manager"

// These variables are set in build step
var (
	version   = "develop"
	revision  = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := cli.Run(cli.Version{
		AppName:   appName,
		Version:   version,
		Revision:  revision,
		BuildDate: buildDate,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}
