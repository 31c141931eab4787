package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

type EnqueueOptions struct {
	GlobalOptions

	RequesterID    string
	SourceImageRef string
	TargetItemID   string
	Output         string
}

func DefaultEnqueueOptions() *EnqueueOptions {
	return &EnqueueOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdEnqueue() *cobra.Command {
	o := DefaultEnqueueOptions()
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a fitting request.",
		Args:  cobra.NoArgs,
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

func (o *EnqueueOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.RequesterID, "requester", "r", o.RequesterID, "Identifier of the requesting user")
	fs.StringVarP(&o.SourceImageRef, "source-image", "s", o.SourceImageRef, "Reference to the subject photo")
	fs.StringVarP(&o.TargetItemID, "item", "i", o.TargetItemID, "Identifier of the catalog item to try on")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *EnqueueOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if o.RequesterID == "" {
		return fmt.Errorf("--requester is required")
	}
	if o.SourceImageRef == "" {
		return fmt.Errorf("--source-image is required")
	}
	if o.TargetItemID == "" {
		return fmt.Errorf("--item is required")
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	return nil
}

func (o *EnqueueOptions) Run(ctx context.Context, args []string) error {
	body := map[string]string{
		"requester_id":     o.RequesterID,
		"source_image_ref": o.SourceImageRef,
		"target_item_id":   o.TargetItemID,
	}

	var created struct {
		JobID    string `json:"job_id"`
		Status   string `json:"status"`
		Priority int    `json:"priority"`
	}
	if err := o.postJSON(ctx, "/api/v1/fittings", body, &created); err != nil {
		return fmt.Errorf("enqueueing fitting request: %w", err)
	}

	if o.Output == jsonFormat {
		marshalled, err := json.Marshal(created)
		if err != nil {
			return fmt.Errorf("marshalling response: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	}

	fmt.Printf("%s\n", created.JobID)
	return nil
}
