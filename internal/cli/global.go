package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GlobalOptions struct {
	ServerUrl string
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ServerUrl: "http://localhost:3443",
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the server")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

func (o *GlobalOptions) Client() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// postJSON sends body to path and decodes the JSON response into out.
func (o *GlobalOptions) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.ServerUrl+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func (o *GlobalOptions) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.ServerUrl+path, nil)
	if err != nil {
		return err
	}

	resp, err := o.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	return json.Unmarshal(data, out)
}
