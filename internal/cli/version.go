package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// This variable is set during build time.
var version = "devel"

type VersionOptions struct{}

func DefaultVersionOptions() *VersionOptions {
	return &VersionOptions{}
}

func NewCmdVersion() *cobra.Command {
	o := DefaultVersionOptions()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print buildctl version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	return cmd
}

func (o *VersionOptions) Run(ctx context.Context, out io.Writer) error {
	fmt.Fprintf(out, "buildctl version: %s\n", version)
	return nil
}
