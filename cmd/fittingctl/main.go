package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/cli"
)

func main() {
	command := NewFittingCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewFittingCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fittingctl [flags] [options]",
		Short: "fittingctl controls the fitting request service.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdEnqueue())
	cmd.AddCommand(cli.NewCmdStatus())

	return cmd
}
