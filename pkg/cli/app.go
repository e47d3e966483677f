package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/httpmocker/httpmocker/pkg/app"
	"github.com/httpmocker/httpmocker/pkg/client"
	"github.com/httpmocker/httpmocker/pkg/config"
	"github.com/httpmocker/httpmocker/pkg/logging"
	"github.com/httpmocker/httpmocker/pkg/supervisor"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Start, inspect and stop mock apps",
}

var appRunFlags struct {
	id       string
	kind     string
	port     int
	logLevel string
}

// appRunCmd is the entry point of app child processes.
var appRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Serve one app in the foreground",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var spec app.Spec
		if raw := os.Getenv(supervisor.EnvAppSpec); raw != "" {
			if err := json.Unmarshal([]byte(raw), &spec); err != nil {
				return fmt.Errorf("decode %s: %w", supervisor.EnvAppSpec, err)
			}
		}
		if appRunFlags.id != "" {
			spec.ID = appRunFlags.id
		}
		if appRunFlags.kind != "" {
			spec.Kind = appRunFlags.kind
		}
		if cmd.Flags().Changed("port") {
			spec.Port = appRunFlags.port
		}
		if spec.Host == "" {
			spec.Host = supervisor.DefaultHost
		}
		if spec.HandlerStorageRoot == "" {
			spec.HandlerStorageRoot = config.DefaultHandlerStorageRoot
		}
		if spec.ID == "" {
			spec.ID = spec.Kind + "-" + strconv.Itoa(os.Getpid())
		}

		log := logging.New(logging.Config{
			Level:  logging.ParseLevel(appRunFlags.logLevel),
			Format: logging.FormatJSON,
			Output: cmd.ErrOrStderr(),
		})

		a, err := app.New(spec, app.WithLogger(log))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

var appStartFlags struct {
	host       string
	ssl        bool
	configJSON string
}

var appStartCmd = &cobra.Command{
	Use:   "start KIND PORT",
	Short: "Start an app through the controller",
	Example: `  httpmocker app start gin 9000
  httpmocker app start servemux 9443 --ssl --config '{"h2c": false}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		var cfg map[string]any
		if appStartFlags.configJSON != "" {
			if err := json.Unmarshal([]byte(appStartFlags.configJSON), &cfg); err != nil {
				return fmt.Errorf("invalid --config: %w", err)
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		var opts []client.AppOption
		if appStartFlags.host != "" {
			opts = append(opts, client.AppHost(appStartFlags.host))
		}
		if appStartFlags.ssl {
			opts = append(opts, client.AppSSL())
		}

		resp, err := c.App(args[0], port, opts...).Start(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), resp, resp.ID)
	},
}

var appStatusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "Show the status of an app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		a := c.App("", 0)
		a.Attach(args[0])
		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), st, fmt.Sprintf("%s %s %s:%d", st.ID, st.Status, st.Host, st.Port))
	},
}

var appStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Stop an app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		a := c.App("", 0)
		a.Attach(args[0])
		resp, err := a.Stop(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), resp, resp.Msg)
	},
}

var appListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List apps known to the controller",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		apps, err := c.Apps(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), apps)
		}
		if len(apps) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "No apps running.")
			return err
		}

		w := table(cmd.OutOrStdout())
		_, _ = fmt.Fprintln(w, "ID\tKIND\tADDRESS\tSSL\tSTATUS\tUPTIME")
		for _, a := range apps {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s:%d\t%t\t%s\t%s\n",
				a.ID, a.Kind, a.Host, a.Port, a.SSL, a.Status, time.Since(a.StartedAt).Round(time.Second))
		}
		return w.Flush()
	},
}

func init() {
	rf := appRunCmd.Flags()
	rf.StringVar(&appRunFlags.id, "id", "", "App id")
	rf.StringVar(&appRunFlags.kind, "kind", "", "App kind")
	rf.IntVar(&appRunFlags.port, "port", 0, "Port to listen on")
	rf.StringVar(&appRunFlags.logLevel, "log-level", "info", "Log level")

	sf := appStartCmd.Flags()
	sf.StringVar(&appStartFlags.host, "host", "", "Address the app binds to (default 0.0.0.0)")
	sf.BoolVar(&appStartFlags.ssl, "ssl", false, "Serve HTTPS")
	sf.StringVar(&appStartFlags.configJSON, "config", "", "App configuration as a JSON object")

	appCmd.AddCommand(appRunCmd, appStartCmd, appStatusCmd, appStopCmd, appListCmd)
	rootCmd.AddCommand(appCmd)
}

// attachedApp resolves a running app by id and returns a handle bound to it.
func attachedApp(ctx context.Context, c *client.Client, id string) (*client.App, error) {
	lookup := c.App("", 0)
	lookup.Attach(id)
	st, err := lookup.Status(ctx)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, fmt.Errorf("app %s: %w", id, err)
		}
		return nil, err
	}

	opts := []client.AppOption{client.AppHost(st.Host)}
	if st.SSL {
		opts = append(opts, client.AppSSL())
	}
	a := c.App(st.Kind, st.Port, opts...)
	a.Attach(id)
	return a, nil
}
