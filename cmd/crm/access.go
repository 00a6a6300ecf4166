package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

func accessCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "access", Short: "Manage executor category grants"}

	grant := &cobra.Command{
		Use:   "grant <executor-id> <category-id>",
		Short: "Grant one category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				created, err := rt.Engine.GrantAccess(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"executor_id": args[0], "category_id": args[1], "created": created})
				}
				if created {
					fmt.Println("granted")
				} else {
					fmt.Println("already granted")
				}
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <executor-id> <category-id>",
		Short: "Revoke one category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				if err := rt.Engine.RevokeAccess(ctx, actor, args[0], args[1]); err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Println("revoked")
				}
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <executor-id> [category-id...]",
		Short: "Replace all grants of an executor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				ids, err := rt.Engine.ReplaceAccess(ctx, actor, args[0], args[1:])
				if err != nil {
					return err
				}
				return printGrants(args[0], ids)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <executor-id>",
		Short: "List grants of an executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				rows, err := rt.Engine.ListAccess(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				out := make([]table.Row, 0, len(rows))
				for _, a := range rows {
					out = append(out, table.Row{a.CategoryID, a.CreatedAt})
				}
				renderTable(table.Row{"Category", "Granted"}, out)
				return nil
			})
		},
	}

	cmd.AddCommand(grant, revoke, set, list)
	return cmd
}

func printGrants(executorID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	if viper.GetBool("json") {
		return printJSON(map[string]any{"executor_id": executorID, "category_ids": ids})
	}
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, table.Row{id})
	}
	renderTable(table.Row{"Category"}, rows)
	return nil
}
