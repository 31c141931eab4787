package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

const (
	jsonFormat = "json"
)

var (
	legalOutputTypes = []string{jsonFormat}
)

type statusReply struct {
	JobID         string     `json:"job_id"`
	Status        string     `json:"status"`
	Position      *int       `json:"position,omitempty"`
	EstimatedWait *string    `json:"estimated_wait,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	ResultRef     *string    `json:"result_ref,omitempty"`
	Error         *string    `json:"error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type StatusOptions struct {
	GlobalOptions

	Output string
}

func DefaultStatusOptions() *StatusOptions {
	return &StatusOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdStatus() *cobra.Command {
	o := DefaultStatusOptions()
	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Display the status of a fitting job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *StatusOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid job id %q: %w", args[0], err)
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	return nil
}

func (o *StatusOptions) Run(ctx context.Context, args []string) error {
	var reply statusReply
	if err := o.getJSON(ctx, "/api/v1/fittings/"+args[0], &reply); err != nil {
		return fmt.Errorf("reading status of job %s: %w", args[0], err)
	}

	if o.Output == jsonFormat {
		marshalled, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	}

	return printStatusTable(reply)
}

func printStatusTable(reply statusReply) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "JOB ID\tSTATUS\tPOSITION\tWAIT\tRESULT\tERROR")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		reply.JobID,
		reply.Status,
		orDash(intString(reply.Position)),
		orDash(reply.EstimatedWait),
		orDash(reply.ResultRef),
		orDash(reply.Error),
	)
	return w.Flush()
}

func intString(v *int) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprintf("%d", *v)
	return &s
}

func orDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
