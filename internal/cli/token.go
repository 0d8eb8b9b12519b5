package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/whispie/whispie/internal/api"
	"github.com/whispie/whispie/internal/daemon"
)

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user (development)",
	Long: `Sign an HS256 bearer token for a user with the configured api.jwt_secret
(or WHISPIE_JWT_SECRET). Useful for calling /api/users routes locally.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.API.JWTSecret == "" {
		return errors.New("no api.jwt_secret configured")
	}
	auth, err := api.NewAuthenticator(cfg.API.JWTSecret)
	if err != nil {
		return err
	}
	tok, err := auth.Issue(normalizeUserID(args[0]), tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
