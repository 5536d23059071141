package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leakwatch/gateway/pkg/jwt"
)

func newTokenCmd(g *globals) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token USERNAME",
		Short: "Mint a bearer token signed with the gateway secret",
		Long: `Mint an HS256 bearer token for USERNAME.

The secret is read from --secret or LEAKWATCH_JWT_SECRET and must match the
gateway's AUTH_JWT_SECRET. Intended for operators and local testing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = os.Getenv("LEAKWATCH_JWT_SECRET")
			}
			if secret == "" {
				return errors.New("secret not configured. Use --secret or LEAKWATCH_JWT_SECRET")
			}
			if !jwt.IsValidRole(role) {
				return fmt.Errorf("invalid role %q: want %s, %s or %s", role, jwt.RoleAdministrator, jwt.RoleCollector, jwt.RoleUser)
			}

			token, err := jwt.GenerateToken(args[0], role, secret, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			w := cmd.OutOrStdout()
			if printStructured(w, g.output, map[string]any{
				"token":      token,
				"username":   args[0],
				"role":       role,
				"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
			}) {
				return nil
			}
			fmt.Fprintln(w, token)
			return nil
		},
	}
	tokenCmd.Flags().String("role", jwt.RoleUser, "Role claim: administrator, collector or user")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().String("secret", "", "Signing secret (env: LEAKWATCH_JWT_SECRET)")
	return tokenCmd
}
