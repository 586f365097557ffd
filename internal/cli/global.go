package cli

import (
	"github.com/kubev2v/build-orchestrator/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GlobalOptions struct {
	ServerUrl      string
	ConfigFilePath string
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the build server. Overrides the configuration file.")
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the configuration file")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

// Client talks to --server-url when set, otherwise to the server of the configuration file.
func (o *GlobalOptions) Client() (*client.BuildServerClient, error) {
	if o.ServerUrl != "" {
		return client.NewFromConfig(&client.Config{Service: client.Service{Server: o.ServerUrl}})
	}
	return client.NewFromConfigFile(o.ConfigFilePath)
}
