package cli

import (
	"context"
	"fmt"
	"io"

	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type RegisterOptions struct {
	GlobalOptions

	Script string
}

func DefaultRegisterOptions() *RegisterOptions {
	return &RegisterOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdRegister() *cobra.Command {
	o := DefaultRegisterOptions()
	cmd := &cobra.Command{
		Use:     "register REPOSITORY_URL",
		Short:   "Register a build job for a repository",
		Example: "register https://github.com/octo/hello.git --script 'make dist'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *RegisterOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Script, "script", "s", o.Script, "Build script run instead of the agent build command")
}

func (o *RegisterOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	job, err := c.RegisterJob(ctx, api.RegisterJobRequest{RepositoryUrl: args[0], Script: o.Script})
	if err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}

	fmt.Fprintln(out, job.Id)
	return nil
}
