package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
)

var hashKeySHA256 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Hash an API secret key for config",
	Long: `Hash an API secret key for use as API_SECRET_KEY.

The default output is an argon2id hash. With --sha256 the output is
"sha256:<hex>". Either form can be set as API_SECRET_KEY; clients keep
sending the raw key in the x-api-key header.

Example:
  voltig-turbo hash-key "my-secret-api-key"
  # Output: $argon2id$v=19$m=65536,t=1,p=...

Security note: The key will appear in shell history.
Consider clearing history after use or using environment variable:
  voltig-turbo hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := hashAPIKey(args[0], hashKeySHA256)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func hashAPIKey(key string, sha bool) (string, error) {
	if sha {
		return "sha256:" + auth.HashKey(key), nil
	}
	hash, err := auth.HashKeyArgon2id(key)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}
	return hash, nil
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "output a sha256:<hex> hash instead of argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}
