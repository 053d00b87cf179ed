package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Gandorini/S-T-Station/middleware"
	"github.com/spf13/cobra"
)

var tokenUser string

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "user id to put in the token subject")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mints a development token",
	Long:  `Signs a bearer token with the configured secret. Production tokens come from the identity provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return errors.New("--user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not set")
		}

		token, expiresAt, err := middleware.GenerateToken(tokenUser, &cfg.Auth)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}
