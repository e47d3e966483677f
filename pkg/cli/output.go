package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/httpmocker/httpmocker/pkg/client"
)

// printJSON writes indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints v as JSON with --json, otherwise the plain message.
func printResult(w io.Writer, v any, msg string) error {
	if jsonOutput {
		return printJSON(w, v)
	}
	_, err := fmt.Fprintln(w, msg)
	return err
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithInsecureSkipVerify()}
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(controllerURL, opts...)
}
