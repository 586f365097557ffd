package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/kubev2v/build-orchestrator/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type LoginOptions struct {
	ConfigFilePath string
	SkipCheck      bool
}

func DefaultLoginOptions() *LoginOptions {
	return &LoginOptions{
		ConfigFilePath: client.DefaultConfigPath(),
	}
}

func NewCmdLogin() *cobra.Command {
	o := DefaultLoginOptions()
	cmd := &cobra.Command{
		Use:          "login SERVER_URL",
		Short:        "Save the build server address to the configuration file.",
		Example:      "login http://localhost:8000",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *LoginOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the configuration file")
	fs.BoolVar(&o.SkipCheck, "skip-check", o.SkipCheck, "Do not check that the server answers before saving it")
}

func (o *LoginOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	server := args[0]
	c, err := client.NewFromConfig(&client.Config{Service: client.Service{Server: server}})
	if err != nil {
		return err
	}
	if !o.SkipCheck {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("checking %s: %w", server, err)
		}
	}

	if err := client.WriteConfig(o.ConfigFilePath, server); err != nil {
		return err
	}
	fmt.Fprintf(out, "Using build server %s\n", server)
	return nil
}
