package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

// refRow is the common shape of categories and channels.
type refRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// refOps binds one reference table to the engine.
type refOps struct {
	create func(context.Context, engine.Engine, domain.Actor, string) (refRow, error)
	update func(context.Context, engine.Engine, domain.Actor, string, engine.RefPatch) (refRow, error)
	list   func(context.Context, engine.Engine, domain.Actor, bool) ([]refRow, error)
}

func categoryRow(c domain.Category) refRow { return refRow{ID: c.ID, Name: c.Name, IsActive: c.IsActive} }
func channelRow(c domain.Channel) refRow   { return refRow{ID: c.ID, Name: c.Name, IsActive: c.IsActive} }

func refOpsFor(kind string) refOps {
	if kind == "channel" {
		return refOps{
			create: func(ctx context.Context, e engine.Engine, a domain.Actor, name string) (refRow, error) {
				c, err := e.CreateChannel(ctx, a, name)
				return channelRow(c), err
			},
			update: func(ctx context.Context, e engine.Engine, a domain.Actor, id string, p engine.RefPatch) (refRow, error) {
				c, err := e.UpdateChannel(ctx, a, id, p)
				return channelRow(c), err
			},
			list: func(ctx context.Context, e engine.Engine, a domain.Actor, inactive bool) ([]refRow, error) {
				items, err := e.ListChannels(ctx, a, inactive)
				rows := make([]refRow, 0, len(items))
				for _, c := range items {
					rows = append(rows, channelRow(c))
				}
				return rows, err
			},
		}
	}
	return refOps{
		create: func(ctx context.Context, e engine.Engine, a domain.Actor, name string) (refRow, error) {
			c, err := e.CreateCategory(ctx, a, name)
			return categoryRow(c), err
		},
		update: func(ctx context.Context, e engine.Engine, a domain.Actor, id string, p engine.RefPatch) (refRow, error) {
			c, err := e.UpdateCategory(ctx, a, id, p)
			return categoryRow(c), err
		},
		list: func(ctx context.Context, e engine.Engine, a domain.Actor, inactive bool) ([]refRow, error) {
			items, err := e.ListCategories(ctx, a, inactive)
			rows := make([]refRow, 0, len(items))
			for _, c := range items {
				rows = append(rows, categoryRow(c))
			}
			return rows, err
		},
	}
}

func printRefs(rows ...refRow) error {
	if viper.GetBool("json") {
		if len(rows) == 1 {
			return printJSON(rows[0])
		}
		return printJSON(rows)
	}
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{r.ID, r.Name, r.IsActive})
	}
	renderTable(table.Row{"ID", "Name", "Active"}, out)
	return nil
}

func refCmd(kind, short string) *cobra.Command {
	ops := refOpsFor(kind)
	cmd := &cobra.Command{Use: kind, Short: short}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				row, err := ops.create(ctx, rt.Engine, actor, args[0])
				if err != nil {
					return err
				}
				return printRefs(row)
			})
		},
	}

	var includeInactive bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + kind + "s",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				rows, err := ops.list(ctx, rt.Engine, actor, includeInactive)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				return printRefs(rows...)
			})
		},
	}
	list.Flags().BoolVar(&includeInactive, "include-inactive", false, "include deactivated rows (admin only)")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename or (de)activate a " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.RefPatch{Name: stringFlag(cmd, "name"), IsActive: boolFlag(cmd, "active")}
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				row, err := ops.update(ctx, rt.Engine, actor, args[0], patch)
				if err != nil {
					return err
				}
				return printRefs(row)
			})
		},
	}
	update.Flags().String("name", "", "new name")
	update.Flags().Bool("active", true, "activity flag")

	cmd.AddCommand(create, list, update)
	return cmd
}
