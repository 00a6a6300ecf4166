package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/server"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "API bearer tokens"}
	var username string
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Sign a JWT for a user (admins for anyone, others for themselves)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				if rt.Config.Auth.JWTSecret == "" {
					return fmt.Errorf("auth.jwt_secret is not configured")
				}
				target := username
				if target == "" {
					target = viper.GetString("actor")
				}
				u, err := rt.Engine.ResolveUsername(ctx, target)
				if err != nil {
					return err
				}
				// GetUser applies the self-or-admin rule.
				if _, err := rt.Engine.GetUser(ctx, actor, u.ID); err != nil {
					return err
				}
				if !u.IsActive {
					return fmt.Errorf("user %s is inactive", u.Username)
				}
				if ttl <= 0 {
					ttl = rt.Config.Auth.TokenTTL
				}
				token, exp, err := server.SignToken(rt.Config.Auth.JWTSecret, u, ttl, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(server.TokenResponse{Token: token, ExpiresAt: domain.FormatTime(exp), User: u})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	mint.Flags().StringVar(&username, "user", "", "username to mint for (defaults to --actor)")
	mint.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	cmd.AddCommand(mint)
	return cmd
}
