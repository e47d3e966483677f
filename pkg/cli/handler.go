package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/httpmocker/httpmocker/pkg/client"
)

var handlerFlags struct {
	appID      string
	format     string
	routesName string
	dataPath   string
}

var handlerCmd = &cobra.Command{
	Use:   "handler",
	Short: "Manage handler modules and handler data of a running app",
}

// readSource reads a file, or stdin for "-".
func readSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path) //nolint:gosec // G304: user-supplied handler file
}

// sourceFormat returns --format, or the format implied by the file extension.
func sourceFormat(path string) string {
	if handlerFlags.format != "" {
		return handlerFlags.format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

func appHandler(cmd *cobra.Command, name string, opts ...client.HandlerOption) (*client.Handler, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	a, err := attachedApp(cmd.Context(), c, handlerFlags.appID)
	if err != nil {
		return nil, err
	}
	return a.Handler(name, opts...)
}

func handlerOptions(path string) []client.HandlerOption {
	var opts []client.HandlerOption
	if f := sourceFormat(path); f != "" {
		opts = append(opts, client.WithFormat(f))
	}
	if handlerFlags.routesName != "" {
		opts = append(opts, client.WithRoutesName(handlerFlags.routesName))
	}
	return opts
}

var handlerSetCmd = &cobra.Command{
	Use:   "set NAME FILE",
	Short: "Register the routes of a handler module",
	Example: `  httpmocker handler set users users.yaml --app gin-6f1c...
  httpmocker handler set greet greet.go --app gin-6f1c... --routes-name Handlers`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readSource(cmd, args[1])
		if err != nil {
			return err
		}
		h, err := appHandler(cmd, args[0], handlerOptions(args[1])...)
		if err != nil {
			return err
		}
		resp, err := h.Set(cmd.Context(), source)
		if err != nil {
			return err
		}
		msg := resp.Msg
		if len(resp.Overridden) > 0 {
			msg += " Overridden: " + strings.Join(resp.Overridden, ", ")
		}
		return printResult(cmd.OutOrStdout(), resp, msg)
	},
}

var handlerRemoveCmd = &cobra.Command{
	Use:     "remove NAME FILE",
	Aliases: []string{"rm"},
	Short:   "Unregister the routes of a handler module",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readSource(cmd, args[1])
		if err != nil {
			return err
		}
		opts := append(handlerOptions(args[1]), client.Registered(source))
		h, err := appHandler(cmd, args[0], opts...)
		if err != nil {
			return err
		}
		resp, err := h.Remove(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), resp, resp.Msg)
	},
}

var handlerDataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage per-route handler data",
}

var handlerDataSetCmd = &cobra.Command{
	Use:   "set URL JSON",
	Short: "Store JSON data for a route; JSON may be @file or - for stdin",
	Example: `  httpmocker handler data set /users/{id} '{"name": "ada"}' --app gin-6f1c...
  httpmocker handler data set /users @users.json --app gin-6f1c...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := []byte(args[1])
		var err error
		switch {
		case args[1] == "-":
			raw, err = readSource(cmd, "-")
		case strings.HasPrefix(args[1], "@"):
			raw, err = readSource(cmd, args[1][1:])
		}
		if err != nil {
			return err
		}
		if !json.Valid(raw) {
			return fmt.Errorf("data for %s is not valid JSON", args[0])
		}

		h, err := appHandler(cmd, "", client.Registered(nil))
		if err != nil {
			return err
		}
		resp, err := h.SetData(cmd.Context(), args[0], raw)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), resp, resp.Msg)
	},
}

var handlerDataGetCmd = &cobra.Command{
	Use:   "get URL",
	Short: "Print the data stored for a route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := appHandler(cmd, "", client.Registered(nil))
		if err != nil {
			return err
		}
		var data json.RawMessage
		if err := h.Data(cmd.Context(), args[0], handlerFlags.dataPath, &data); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), data)
	},
}

var handlerDataRemoveCmd = &cobra.Command{
	Use:     "remove URL",
	Aliases: []string{"rm"},
	Short:   "Delete the data stored for a route",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := appHandler(cmd, "", client.Registered(nil))
		if err != nil {
			return err
		}
		resp, err := h.RemoveData(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), resp, resp.Msg)
	},
}

func init() {
	pf := handlerCmd.PersistentFlags()
	pf.StringVar(&handlerFlags.appID, "app", "", "Id of the app (required)")
	_ = handlerCmd.MarkPersistentFlagRequired("app")

	for _, c := range []*cobra.Command{handlerSetCmd, handlerRemoveCmd} {
		c.Flags().StringVar(&handlerFlags.format, "format", "", "Source format: go or yaml (default from the file extension)")
		c.Flags().StringVar(&handlerFlags.routesName, "routes-name", "", "Symbol holding the route table in Go sources (default Routes)")
	}
	handlerDataGetCmd.Flags().StringVar(&handlerFlags.dataPath, "path", "", "JSONPath selecting part of the data")

	handlerDataCmd.AddCommand(handlerDataSetCmd, handlerDataGetCmd, handlerDataRemoveCmd)
	handlerCmd.AddCommand(handlerSetCmd, handlerRemoveCmd, handlerDataCmd)
	rootCmd.AddCommand(handlerCmd)
}
