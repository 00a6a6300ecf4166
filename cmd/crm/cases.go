package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

func caseCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "case", Short: "Register and work cases"}
	cmd.AddCommand(caseCreateCmd())
	cmd.AddCommand(caseListCmd())
	cmd.AddCommand(caseShowCmd())
	cmd.AddCommand(caseHistoryCmd())
	cmd.AddCommand(caseVerifyCmd())
	cmd.AddCommand(caseTakeCmd())
	cmd.AddCommand(caseStatusCmd())
	cmd.AddCommand(caseAssignCmd())
	cmd.AddCommand(caseEditCmd())
	return cmd
}

func caseRow(c domain.Case) table.Row {
	return table.Row{c.PublicID, c.ID, c.Status, c.CategoryID, c.ApplicantName, c.Responsible(), c.UpdatedAt}
}

var caseHeader = table.Row{"Public ID", "ID", "Status", "Category", "Applicant", "Responsible", "Updated"}

func printCase(c domain.Case) error {
	if viper.GetBool("json") {
		return printJSON(c)
	}
	renderTable(caseHeader, []table.Row{caseRow(c)})
	return nil
}

func caseCreateCmd() *cobra.Command {
	var in engine.CreateCaseInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new case",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Subcategory = stringFlag(cmd, "subcategory")
			in.ApplicantPhone = stringFlag(cmd, "phone")
			in.ApplicantEmail = stringFlag(cmd, "email")
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				c, err := rt.Engine.CreateCase(ctx, actor, in)
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.CategoryID, "category", "", "category id")
	cmd.Flags().StringVar(&in.ChannelID, "channel", "", "channel id")
	cmd.Flags().StringVar(&in.ApplicantName, "applicant", "", "applicant name")
	cmd.Flags().StringVar(&in.Summary, "summary", "", "what the applicant needs")
	cmd.Flags().String("subcategory", "", "free-form subcategory")
	cmd.Flags().String("phone", "", "applicant phone")
	cmd.Flags().String("email", "", "applicant email")
	return cmd
}

func caseListCmd() *cobra.Command {
	var q engine.CaseQuery
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				q.Statuses = append(q.Statuses, domain.Status(strings.ToUpper(s)))
			}
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				page, err := rt.Engine.ListCases(ctx, actor, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				rows := make([]table.Row, 0, len(page.Items))
				for _, c := range page.Items {
					rows = append(rows, caseRow(c))
				}
				renderTable(caseHeader, rows)
				fmt.Printf("%d-%d of %d\n", min(page.Skip+1, page.Total), page.Skip+len(page.Items), page.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter (repeatable)")
	cmd.Flags().StringSliceVar(&q.CategoryIDs, "category", nil, "category id filter")
	cmd.Flags().StringSliceVar(&q.ChannelIDs, "channel", nil, "channel id filter")
	cmd.Flags().IntVar(&q.PublicID, "public-id", 0, "exact public id")
	cmd.Flags().StringVar(&q.Subcategory, "subcategory", "", "subcategory substring")
	cmd.Flags().StringVar(&q.Applicant, "applicant", "", "applicant name, phone or email substring")
	cmd.Flags().StringVar(&q.ResponsibleID, "responsible", "", "responsible executor id")
	cmd.Flags().StringVar(&q.CreatedFrom, "created-from", "", "RFC3339 time or YYYY-MM-DD")
	cmd.Flags().StringVar(&q.CreatedTo, "created-to", "", "RFC3339 time or YYYY-MM-DD")
	cmd.Flags().StringVar(&q.UpdatedFrom, "updated-from", "", "RFC3339 time or YYYY-MM-DD")
	cmd.Flags().StringVar(&q.UpdatedTo, "updated-to", "", "RFC3339 time or YYYY-MM-DD")
	cmd.Flags().BoolVar(&q.Overdue, "overdue", false, "only open cases idle past the overdue window")
	cmd.Flags().StringVar(&q.OrderBy, "order-by", "", "created_at, updated_at, public_id or status; prefix - for descending")
	cmd.Flags().IntVar(&q.Skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "page size")
	return cmd
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id|public-id>",
		Short: "Show case with history and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				d, err := rt.Engine.CaseDetail(ctx, actor, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				c := d.Case
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Public ID", c.PublicID},
					{"Status", c.Status},
					{"Overdue", d.Overdue},
					{"Category", c.CategoryID},
					{"Subcategory", deref(c.Subcategory)},
					{"Channel", c.ChannelID},
					{"Applicant", c.ApplicantName},
					{"Phone", deref(c.ApplicantPhone)},
					{"Email", deref(c.ApplicantEmail)},
					{"Author", c.AuthorID},
					{"Responsible", c.Responsible()},
					{"Created", c.CreatedAt},
					{"Updated", c.UpdatedAt},
					{"Summary", c.Summary},
				})
				tw.Render()
				printHistory(d.History)
				printComments(d.Comments)
				return nil
			})
		},
	}
}

func printHistory(h []domain.StatusHistoryEntry) {
	rows := make([]table.Row, 0, len(h))
	for _, e := range h {
		old := ""
		if e.OldStatus != nil {
			old = string(*e.OldStatus)
		}
		rows = append(rows, table.Row{e.Seq, old, e.NewStatus, e.ChangedByID, e.ChangedAt})
	}
	renderTable(table.Row{"#", "From", "To", "By", "At"}, rows)
}

func caseHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <case-id|public-id>",
		Short: "Show status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				h, err := rt.Engine.HistoryFor(ctx, actor, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(h)
				}
				printHistory(h)
				return nil
			})
		},
	}
}

func caseVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <case-id|public-id>",
		Short: "Check that the history replays to the current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				if err := rt.Engine.VerifyHistory(ctx, actor, id); err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Println("history consistent")
				}
				return nil
			})
		},
	}
}

func caseTakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "take <case-id|public-id>",
		Short: "Claim a NEW case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				c, err := rt.Engine.TakeCase(ctx, actor, id)
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
}

func caseStatusCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "status <case-id|public-id> <status>",
		Short: "Move a case to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				c, err := rt.Engine.ChangeStatus(ctx, actor, id, domain.Status(strings.ToUpper(args[1])), comment)
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "justification (required for non-admins)")
	return cmd
}

func caseAssignCmd() *cobra.Command {
	var unassign bool
	cmd := &cobra.Command{
		Use:   "assign <case-id|public-id> [executor-id]",
		Short: "Set or clear the responsible executor",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target *string
			switch {
			case len(args) == 2 && !unassign:
				target = &args[1]
			case len(args) == 1 && unassign:
			default:
				return fmt.Errorf("give an executor id or --unassign")
			}
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				c, err := rt.Engine.Assign(ctx, actor, id, target)
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	cmd.Flags().BoolVar(&unassign, "unassign", false, "clear the responsible executor")
	return cmd
}

func caseEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <case-id|public-id>",
		Short: "Edit descriptive case fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.CaseFieldsPatch{
				CategoryID:     stringFlag(cmd, "category"),
				ChannelID:      stringFlag(cmd, "channel"),
				Subcategory:    stringFlag(cmd, "subcategory"),
				ApplicantName:  stringFlag(cmd, "applicant"),
				ApplicantPhone: stringFlag(cmd, "phone"),
				ApplicantEmail: stringFlag(cmd, "email"),
				Summary:        stringFlag(cmd, "summary"),
			}
			return withActor(cmd, func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				id, err := resolveCaseID(ctx, rt, actor, args[0])
				if err != nil {
					return err
				}
				c, err := rt.Engine.EditFields(ctx, actor, id, patch)
				if err != nil {
					return err
				}
				return printCase(c)
			})
		},
	}
	for _, f := range []string{"category", "channel", "subcategory", "applicant", "phone", "email", "summary"} {
		cmd.Flags().String(f, "", "new "+f)
	}
	return cmd
}
