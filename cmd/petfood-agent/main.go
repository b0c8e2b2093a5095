package main

import (
	"github.com/go-go-golems/petfood-agent/cmd/petfood-agent/cmds"
	"github.com/spf13/cobra"
)

func main() {
	root := cmds.NewRootCommand()
	cobra.CheckErr(root.Execute())
}
