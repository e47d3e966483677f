package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/httpmocker/httpmocker/pkg/config"
	"github.com/httpmocker/httpmocker/pkg/controller"
)

var tokenFlags struct {
	configFile string
	subject    string
	ttl        time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a controller running with authSecret",
	Long: `Mint an HS256 bearer token signed with the controller's authSecret. The secret
is read from the configuration file and HTTP_MOCKER_AUTH_SECRET, the same way
serve reads it.`,
	Example: `  export HTTP_MOCKER_TOKEN=$(httpmocker token --subject ci --ttl 1h)`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(tokenFlags.configFile)
		if err != nil {
			return err
		}
		if cfg.AuthSecret == "" {
			return errors.New("no authSecret configured")
		}
		tok, err := controller.NewToken(cfg.AuthSecret, tokenFlags.subject, tokenFlags.ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	user := os.Getenv("USER")
	if user == "" {
		user = "httpmocker"
	}
	f := tokenCmd.Flags()
	f.StringVarP(&tokenFlags.configFile, "config", "c", "", "Path to a YAML configuration file")
	f.StringVar(&tokenFlags.subject, "subject", user, "Token subject")
	f.DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "Token lifetime; 0 for no expiry")
	rootCmd.AddCommand(tokenCmd)
}
