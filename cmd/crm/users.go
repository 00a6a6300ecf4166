package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userShowCmd())
	cmd.AddCommand(userUpdateCmd())
	cmd.AddCommand(userActiveCmd("activate", true))
	cmd.AddCommand(userActiveCmd("deactivate", false))
	cmd.AddCommand(userActiveCasesCmd())
	return cmd
}

func printUsers(users ...domain.User) error {
	if viper.GetBool("json") {
		if len(users) == 1 {
			return printJSON(users[0])
		}
		return printJSON(users)
	}
	rows := make([]table.Row, 0, len(users))
	for _, u := range users {
		rows = append(rows, table.Row{u.ID, u.Username, u.FullName, u.Email, u.Role, u.IsActive})
	}
	renderTable(table.Row{"ID", "Username", "Name", "Email", "Role", "Active"}, rows)
	return nil
}

func userCreateCmd() *cobra.Command {
	var in engine.CreateUserInput
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user (without --actor only while no users exist)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = domain.Role(strings.ToUpper(role))
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				var (
					u   domain.User
					err error
				)
				if viper.GetString("actor") == "" {
					u, err = rt.Engine.Bootstrap(ctx, in)
				} else {
					var actor domain.Actor
					if actor, err = rt.Actor(ctx, viper.GetString("actor")); err != nil {
						return err
					}
					u, err = rt.Engine.CreateUser(ctx, actor, in)
				}
				if err != nil {
					return err
				}
				return printUsers(u)
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "OPERATOR, EXECUTOR or ADMIN")
	return cmd
}

func userListCmd() *cobra.Command {
	var q engine.UserQuery
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Role = domain.Role(strings.ToUpper(role))
			q.Active = boolFlag(cmd, "active")
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				users, err := rt.Engine.ListUsers(ctx, actor, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				return printUsers(users...)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().Bool("active", true, "filter by activity")
	cmd.Flags().StringVar(&q.Search, "search", "", "substring of username, name or email")
	cmd.Flags().IntVar(&q.Skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "page size")
	return cmd
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				u, err := rt.Engine.GetUser(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printUsers(u)
			})
		},
	}
}

func userUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Update profile or role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			patch := engine.UserPatch{
				Email:    stringFlag(cmd, "email"),
				FullName: stringFlag(cmd, "full-name"),
				Force:    force,
			}
			if r := stringFlag(cmd, "role"); r != nil {
				role := domain.Role(strings.ToUpper(*r))
				patch.Role = &role
			}
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				u, err := rt.Engine.UpdateUser(ctx, actor, args[0], patch)
				if err != nil {
					return err
				}
				return printUsers(u)
			})
		},
	}
	cmd.Flags().String("email", "", "new email")
	cmd.Flags().String("full-name", "", "new display name")
	cmd.Flags().String("role", "", "new role")
	cmd.Flags().Bool("force", false, "demote even if the user holds open cases; they return to NEW")
	return cmd
}

func userActiveCmd(use string, active bool) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   use + " <user-id>",
		Short: fmt.Sprintf("Set user %s", map[bool]string{true: "active", false: "inactive"}[active]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				u, err := rt.Engine.SetUserActive(ctx, actor, args[0], active, force)
				if err != nil {
					return err
				}
				return printUsers(u)
			})
		},
	}
	if !active {
		cmd.Flags().BoolVar(&force, "force", false, "deactivate even if the user holds open cases")
	}
	return cmd
}

func userActiveCasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active-cases <user-id>",
		Short: "List IN_PROGRESS and NEEDS_INFO cases a user is responsible for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				cases, err := rt.Engine.ActiveCases(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cases)
				}
				rows := make([]table.Row, 0, len(cases))
				for _, c := range cases {
					rows = append(rows, caseRow(c))
				}
				renderTable(caseHeader, rows)
				return nil
			})
		},
	}
}
