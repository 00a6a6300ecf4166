package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

func commentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "comment", Short: "Case comments"}

	var internal bool
	add := &cobra.Command{
		Use:   "add <case-id|public-id> <text>",
		Short: "Add a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				cm, err := rt.Engine.AddComment(ctx, actor, id, args[1], internal)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cm)
				}
				printComments([]domain.Comment{cm})
				return nil
			})
		},
	}
	add.Flags().BoolVar(&internal, "internal", false, "hide from operators")

	list := &cobra.Command{
		Use:   "list <case-id|public-id>",
		Short: "List visible comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				items, err := rt.Engine.ListComments(ctx, actor, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printComments(items)
				return nil
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func printComments(items []domain.Comment) {
	rows := make([]table.Row, 0, len(items))
	for _, c := range items {
		rows = append(rows, table.Row{c.CreatedAt, c.AuthorID, c.IsInternal, c.Text})
	}
	renderTable(table.Row{"At", "Author", "Internal", "Text"}, rows)
}
