package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "crm",
	Short: "Hospital case management",
	Long: `crm registers applicant cases and moves them through their lifecycle.
Core concepts:
- Operators register cases and only see their own.
- Executors claim NEW cases from the shared pool and work the ones assigned to them, optionally scoped to granted categories.
- Admins manage users, reference data, category grants and may reopen closed cases.
- Statuses go NEW -> IN_PROGRESS <-> NEEDS_INFO -> DONE | REJECTED; every change is recorded in the case history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func initConfig() {
	viper.SetEnvPrefix("CRM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "username acting on the command")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(refCmd("category", "Manage case categories"))
	rootCmd.AddCommand(refCmd("channel", "Manage intake channels"))
	rootCmd.AddCommand(accessCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(tokenCmd())
}

// exitCode maps engine error kinds to distinct process exit codes.
func exitCode(err error) int {
	switch engine.KindOf(err) {
	case engine.KindInvalidInput:
		return 2
	case engine.KindForbidden:
		return 3
	case engine.KindNotFound:
		return 4
	case engine.KindInvalidState:
		return 5
	case engine.KindResourceExhausted:
		return 6
	}
	return 1
}

func withRuntime(cmd *cobra.Command, fn func(context.Context, *app.Runtime) error) error {
	ctx := cmd.Context()
	rt, err := app.Open(ctx, viper.GetString("workspace"), viper.GetViper(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// withActor opens the workspace and resolves --actor.
func withActor(cmd *cobra.Command, fn func(context.Context, *app.Runtime, domain.Actor) error) error {
	return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
		actor, err := rt.Actor(ctx, viper.GetString("actor"))
		if err != nil {
			return err
		}
		return fn(ctx, rt, actor)
	})
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create workspace, config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			_, created, err := app.Init(workspace)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if viper.GetBool("json") {
					return printJSON(map[string]any{"workspace": workspace, "config_created": created, "migrations_applied": rt.Applied})
				}
				if created {
					fmt.Printf("Wrote %s\n", "crm.yml")
				}
				fmt.Printf("Workspace ready (%d migrations applied). Create the first admin with: crm user create --username <name> --role ADMIN ...\n", rt.Applied)
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if viper.GetBool("json") {
					return printJSON(map[string]int{"applied": rt.Applied})
				}
				fmt.Printf("Applied %d migrations\n", rt.Applied)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if rt.Config.Auth.JWTSecret == "" {
					return fmt.Errorf("auth.jwt_secret is required (crm.yml or CRM_AUTH_JWT_SECRET)")
				}
				handler, err := newHandler(rt)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: rt.Config.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info().
					Str("addr", rt.Config.Server.Addr).
					Str("base_path", rt.Config.Server.BasePath).
					Str("driver", string(rt.Dialect)).
					Bool("dev_tokens", rt.Config.Auth.DevTokens).
					Msg("serving case API (OpenAPI at /openapi.json, Swagger UI at /docs)")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().Bool("dev-tokens", false, "enable POST /auth/dev/token")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	_ = viper.BindPFlag("auth.dev_tokens", cmd.Flags().Lookup("dev-tokens"))
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

// stringFlag returns a pointer to the flag value only when it was given.
func stringFlag(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func boolFlag(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetBool(name)
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// resolveCaseID accepts either a case id or its six-digit public id.
func resolveCaseID(ctx context.Context, rt *app.Runtime, actor domain.Actor, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil && len(ref) == 6 {
		c, err := rt.Engine.GetCaseByPublicID(ctx, actor, n)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}
	return ref, nil
}
