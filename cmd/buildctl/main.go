package main

import (
	"os"

	"github.com/kubev2v/build-orchestrator/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewBuildCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewBuildCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buildctl [flags] [options]",
		Short: "buildctl controls the build server.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdRegister())
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdLogin())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
