package cmd

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voltigdev/voltig-turbo/internal/config"
)

const redacted = "[REDACTED]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration the server would start with, after the config
file, .env, environment variables and defaults are applied. Secrets and
URL passwords are redacted.

Examples:
  voltig-turbo config
  voltig-turbo --config ./voltig-turbo.yaml config --dev`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if file := config.ConfigFileUsed(); file != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", file)
		}
		return writeRedactedConfig(cmd.OutOrStdout(), cfg)
	},
}

// writeRedactedConfig writes cfg as YAML with secrets hidden.
func writeRedactedConfig(w io.Writer, cfg *config.Config) error {
	out := *cfg
	if out.Auth.Secret != "" {
		out.Auth.Secret = redacted
	}
	if out.Auth.APISecretKey != "" {
		out.Auth.APISecretKey = redacted
	}
	out.Database.URL = redactURL(out.Database.URL)
	out.RateLimit.RedisURL = redactURL(out.RateLimit.RedisURL)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

// redactURL hides the password of a connection URL. Values that do not
// parse as URLs with credentials are returned unchanged.
func redactURL(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "sqlite://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func init() {
	configCmd.Flags().BoolVar(&devMode, "dev", false, "Apply development defaults")
	rootCmd.AddCommand(configCmd)
}
