package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

type GetOptions struct {
	GlobalOptions

	Output        string
	Limit         int
	Latest        bool
	RepositoryUrl string
	CommitHash    string
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:   "get (TYPE | TYPE/ID)",
		Short: "Display one or many resources.",
		Example: `get jobs --latest
get job/3f1c2a9e-7b4d-4c8e-9a51-0d2f6e8b1c44 -o yaml
get artifacts --repository-url https://github.com/octo/hello.git`,
		Args: cobra.ExactArgs(1),
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

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of jobs to list. The server default applies when unset.")
	fs.BoolVar(&o.Latest, "latest", o.Latest, "List only the most recent finished job of every repository")
	fs.StringVar(&o.RepositoryUrl, "repository-url", o.RepositoryUrl, "List the artifacts of this repository")
	fs.StringVar(&o.CommitHash, "commit-hash", o.CommitHash, "List the artifacts of this commit")
}

func (o *GetOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	return nil
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	kind, _, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	if o.Limit < 0 {
		return fmt.Errorf("limit must be positive")
	}
	if kind == ArtifactKind && o.RepositoryUrl == "" && o.CommitHash == "" {
		return fmt.Errorf("listing artifacts needs --repository-url or --commit-hash")
	}

	return nil
}

func (o *GetOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	var response any
	switch {
	case kind == JobKind && id != nil:
		response, err = c.GetJob(ctx, *id)
	case kind == JobKind:
		response, err = c.ListJobs(ctx, o.Limit, o.Latest)
	case kind == ArtifactKind:
		response, err = c.ListArtifacts(ctx, o.RepositoryUrl, o.CommitHash)
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}
	return processResponse(out, response, err, kind, id, o.Output)
}

func processResponse(out io.Writer, response any, err error, kind string, id *uuid.UUID, output string) error {
	errorPrefix := fmt.Sprintf("reading %s/%s", kind, id)
	if id == nil {
		errorPrefix = fmt.Sprintf("listing %s", plural(kind))
	}

	if err != nil {
		return fmt.Errorf(errorPrefix+": %w", err)
	}

	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(out, "%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(out, "%s\n", string(marshalled))
		return nil
	default:
		return printTable(out, response)
	}
}

func printTable(out io.Writer, response any) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	switch r := response.(type) {
	case *api.Job:
		printJobsTable(w, *r)
	case api.JobList:
		printJobsTable(w, r...)
	case api.ArtifactList:
		printArtifactsTable(w, r...)
	default:
		return fmt.Errorf("unknown resource type %T", response)
	}
	return w.Flush()
}

func printJobsTable(w io.Writer, jobs ...api.Job) {
	fmt.Fprintln(w, "ID\tREPOSITORY\tCOMMIT\tSTATUS\tCREATED")
	for _, j := range jobs {
		commit := "-"
		if j.CommitHash != nil {
			commit = shortHash(*j.CommitHash)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.Id, j.RepositoryUrl, commit, j.Status, j.CreatedAt.Format(time.RFC3339))
	}
}

func printArtifactsTable(w io.Writer, artifacts ...api.Artifact) {
	fmt.Fprintln(w, "FILE\tCOMMIT\tPATH")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.FileName, shortHash(a.CommitHash), a.Path)
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
