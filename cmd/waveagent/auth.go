package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/waveforge/wave/internal/config"
)

// buildAuthCmd issues a bearer token signed with the loaded
// server.jwtSecret, for bootstrapping a client against waveagent
// serve. Grounded on the teacher's auth.JWTService.Generate, narrowed
// to a subject claim only (this runtime has no user/session store of
// its own to embed an email/name into the token).
func buildAuthCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Issue a bearer token for the HTTP host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwtSecret (or JWT_SECRET) is not configured")
			}
			if ttl <= 0 {
				ttl = cfg.Server.TokenExpiry
			}

			claims := jwt.RegisteredClaims{
				Subject:   subject,
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := token.SignedString([]byte(cfg.Server.JWTSecret))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Println(signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "waveagent-cli", "Subject claim for the issued token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to server.tokenExpiry)")
	return cmd
}
