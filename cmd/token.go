package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dragonfly/internal/directory"
	"dragonfly/internal/identity"
	"dragonfly/internal/logger"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint a development bearer token for a directory user",
	Long: `Sign a bearer token for a user of the directory seed.

The token is signed with DRAGONFLY_TOKEN_SECRET and is meant for local
development and manual testing of the HTTP API.`,
	Example: `  # Token for the Miami submitter of the built-in seed
  dragonfly token user-001

  # Short-lived token
  dragonfly token user-002 --ttl 15m`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default: DRAGONFLY_TOKEN_TTL)")
}

func runToken(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("token")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireTokenSecret(); err != nil {
		return err
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.TokenTTL
	}

	dir, err := loadDirectory(cfg)
	if err != nil {
		return err
	}
	user, err := dir.User(args[0])
	if err != nil {
		if errors.Is(err, directory.ErrUnknownUser) {
			return fmt.Errorf("no user %q in the directory", args[0])
		}
		return err
	}

	resolver, err := identity.NewTokenResolver(identity.TokenConfig{
		Secret: []byte(cfg.TokenSecret),
		Issuer: cfg.TokenIssuer,
		TTL:    ttl,
	}, dir)
	if err != nil {
		return fmt.Errorf("failed to create token resolver: %w", err)
	}
	token, err := resolver.IssueToken(user)
	if err != nil {
		return err
	}

	log.Debug().
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Dur("ttl", ttl).
		Msg("Issued development token")

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
