package main

import (
	"os"

	azauthcmd "github.com/telekom/azauth/pkg/cmd"
)

func main() {
	root := azauthcmd.NewRootCommand(azauthcmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
