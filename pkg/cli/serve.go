package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/httpmocker/httpmocker/pkg/config"
	"github.com/httpmocker/httpmocker/pkg/controller"
	"github.com/httpmocker/httpmocker/pkg/logging"
	"github.com/httpmocker/httpmocker/pkg/supervisor"
)

type serveFlags struct {
	configFile string
	logLevel   string
	logFormat  string
	logFile    string
	inProcess  bool
}

var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve [host] [port]",
	Short: "Start the controller (foreground)",
	Long: `Start the controller. It listens on host:port (default 0.0.0.0:8080) and
starts, reports on and stops mock apps through /mock/app/.

Values are resolved in this order, later wins: defaults, configuration file,
HTTP_MOCKER_* environment variables, flags and positional arguments.
All running apps are stopped when the controller receives SIGINT or SIGTERM.`,
	Example: `  # Start with defaults
  httpmocker serve

  # Listen on localhost:9090 with a configuration file
  httpmocker serve 127.0.0.1 9090 --config httpmocker.yaml

  # JSON logs, also written to a rotated file
  httpmocker serve --log-format json --log-file httpmocker.log`,
	Args: cobra.MaximumNArgs(2),
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlagVals.configFile, "config", "c", "", "Path to a YAML configuration file (env "+config.EnvConfigFile+")")
	f.StringVar(&serveFlagVals.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&serveFlagVals.logFormat, "log-format", "", "Log format (text, json)")
	f.StringVar(&serveFlagVals.logFile, "log-file", "", "Also write logs to this rotated file")
	f.BoolVar(&serveFlagVals.inProcess, "in-process", false, "Serve apps from goroutines instead of child processes")
	rootCmd.AddCommand(serveCmd)
}

// serveConfig resolves the effective configuration for serve.
func serveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(serveFlagVals.configFile)
	if err != nil {
		return nil, err
	}

	overrides := map[string]string{}
	if len(args) > 0 {
		overrides["host"] = args[0]
	}
	if len(args) > 1 {
		overrides["port"] = args[1]
	}
	for flag, key := range map[string]string{
		"log-level":  "serverLogLevel",
		"log-format": "serverLogFormat",
		"log-file":   "serverLogFile",
	} {
		if cmd.Flags().Changed(flag) {
			overrides[key] = cmd.Flags().Lookup(flag).Value.String()
		}
	}
	for key, value := range overrides {
		if err := cfg.Set(key, value, config.SourceFlag); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd, args)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.ServerLogLevel),
		Format: logging.ParseFormat(cfg.ServerLogFormat),
		Output: cmd.ErrOrStderr(),
		File:   cfg.ServerLogFile,
	})
	slog.SetDefault(log)

	var appCert, appKey []byte
	if cfg.SSLCert != "" {
		if appCert, err = os.ReadFile(cfg.SSLCert); err != nil {
			return fmt.Errorf("read sslCert: %w", err)
		}
		if appKey, err = os.ReadFile(cfg.SSLKey); err != nil {
			return fmt.Errorf("read sslKey: %w", err)
		}
	}

	var spawner supervisor.Spawner = &supervisor.ExecSpawner{
		LogLevel: cfg.ServerLogLevel,
		Logger:   log,
	}
	if serveFlagVals.inProcess {
		spawner = &supervisor.InProcessSpawner{Logger: log}
	}

	sup := supervisor.New(spawner, supervisor.Options{
		StartTimeout:       cfg.StartTimeoutDuration(),
		StopTimeout:        cfg.StopTimeoutDuration(),
		CertStorageRoot:    cfg.CertStorageRoot,
		HandlerStorageRoot: cfg.HandlerStorageRoot,
		Logger:             log,
	})

	srv := controller.NewServer(sup, controller.Options{
		Host:           cfg.Host,
		Port:           cfg.Port,
		SSLPort:        cfg.SSLPort,
		CertFile:       cfg.SSLCert,
		KeyFile:        cfg.SSLKey,
		ClientCAFile:   cfg.SSLClientCA,
		AppCertPEM:     appCert,
		AppKeyPEM:      appKey,
		RequestTimeout: cfg.RequestTimeoutDuration(),
		AuthSecret:     cfg.AuthSecret,
		Logger:         log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting controller",
		"host", cfg.Host,
		"port", cfg.Port,
		"handlerStorageRoot", cfg.HandlerStorageRoot,
		"auth", cfg.AuthSecret != "",
		"inProcess", serveFlagVals.inProcess,
	)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("controller stopped")
	return nil
}
