package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tooldo/internal/app"
	"tooldo/internal/config"
	"tooldo/internal/db"
	"tooldo/internal/domain"
	"tooldo/internal/engine"
	"tooldo/internal/filter"
	"tooldo/internal/migrate"
	"tooldo/internal/rbac"
	"tooldo/internal/repo"
	"tooldo/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "ToolDo CLI",
	Long: `ToolDo manages companies, teams, members and actions with role-based access.
Core concepts:
- Workspace: a directory holding the .tooldo database and an optional tooldo.yml.
- Company: the tenant owning teams, members and actions, limited by its plan.
- Roles: consultant < executor < manager < admin < master; each role grants a
  curated permission set, and role management follows an explicit allow-list.
- Actions: work items moving TODO -> IN_PROGRESS -> DONE; completing after the
  estimated end marks the action late.
- Dashboard: period metrics (this-week, last-2-weeks, this-month, last-30-days)
  with deltas against the previous period of the same length.
- Event log: diary of changes, view with 'td log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TOOLDO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("member-id", "", "acting member identifier")
	rootCmd.PersistentFlags().String("company", "", "company id (defaults to the workspace's single company)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("member-id", rootCmd.PersistentFlags().Lookup("member-id"))
	_ = viper.BindPFlag("company", rootCmd.PersistentFlags().Lookup("company"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name, plan, firstName, lastName, email string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a company with its first master member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				company, master, err := e.InitCompany(ctx, engine.InitCompanyOptions{
					CompanyName: name,
					PlanID:      plan,
					FirstName:   firstName,
					LastName:    lastName,
					Email:       email,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"company": company, "master": master})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&plan, "plan", "", "plan id (defaults to config)")
	cmd.Flags().StringVar(&firstName, "first-name", "", "master member first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "master member last name")
	cmd.Flags().StringVar(&email, "email", "", "master member email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("first-name")
	return cmd
}

func companyCmd() *cobra.Command {
	c := &cobra.Command{Use: "company", Short: "Manage companies"}
	c.AddCommand(companyListCmd())
	c.AddCommand(companyShowCmd())
	c.AddCommand(companyCreateCmd())
	c.AddCommand(companyUpdateCmd())
	return c
}

func companyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCompanies(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func companyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := app.ResolveCompany(ctx, r, viper.GetString("company"))
				if err != nil {
					return err
				}
				c, err := r.GetCompany(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func companyCreateCmd() *cobra.Command {
	var name, plan string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an additional company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCompany(ctx, name, plan, viper.GetString("member-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&plan, "plan", "", "plan id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func companyUpdateCmd() *cobra.Command {
	var name, plan, status string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				var namePtr, planPtr, statusPtr *string
				if cmd.Flags().Changed("name") {
					namePtr = &name
				}
				if cmd.Flags().Changed("plan") {
					planPtr = &plan
				}
				if cmd.Flags().Changed("status") {
					statusPtr = &status
				}
				c, err := e.UpdateCompany(ctx, id, namePtr, planPtr, statusPtr, viper.GetString("member-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&plan, "plan", "", "plan id")
	cmd.Flags().StringVar(&status, "status", "", "status (active, suspended)")
	return cmd
}

func teamCmd() *cobra.Command {
	c := &cobra.Command{Use: "team", Short: "Manage teams"}
	c.AddCommand(teamCreateCmd())
	c.AddCommand(teamListCmd())
	return c
}

func teamCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				companyID, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				t, err := e.CreateTeam(ctx, companyID, name, viper.GetString("member-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "team name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				companyID, err := app.ResolveCompany(ctx, r, viper.GetString("company"))
				if err != nil {
					return err
				}
				teams, err := r.ListTeams(ctx, companyID)
				if err != nil {
					return err
				}
				return printJSONOrTable(teams)
			})
		},
	}
}

func memberCmd() *cobra.Command {
	c := &cobra.Command{Use: "member", Short: "Manage members"}
	c.AddCommand(memberAddCmd())
	c.AddCommand(memberListCmd())
	c.AddCommand(memberSetRoleCmd())
	c.AddCommand(memberSetTeamCmd())
	c.AddCommand(memberRemoveCmd())
	return c
}

func memberAddCmd() *cobra.Command {
	var firstName, lastName, email, role, teamID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				companyID, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				m, err := e.AddMember(ctx, engine.MemberCreateOptions{
					CompanyID: companyID,
					TeamID:    teamID,
					FirstName: firstName,
					LastName:  lastName,
					Email:     email,
					Role:      rbac.Role(role),
					ActorID:   viper.GetString("member-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&role, "role", "executor", "role (consultant, executor, manager, admin, master)")
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	_ = cmd.MarkFlagRequired("first-name")
	return cmd
}

func memberListCmd() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				companyID, err := app.ResolveCompany(ctx, r, viper.GetString("company"))
				if err != nil {
					return err
				}
				members, err := r.ListMembers(ctx, companyID, teamID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Team", "Email"})
				for _, m := range members {
					team := ""
					if m.TeamID != nil {
						team = *m.TeamID
					}
					tw.AppendRow(table.Row{m.ID, strings.TrimSpace(m.FirstName + " " + m.LastName), m.Role, team, m.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team filter")
	return cmd
}

func memberSetRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "set-role <member-id>",
		Short: "Change a member's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SetMemberRole(ctx, args[0], rbac.Role(role), viper.GetString("member-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func memberSetTeamCmd() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "set-team <member-id>",
		Short: "Move a member to a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SetMemberTeam(ctx, args[0], teamID, viper.GetString("member-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id (empty clears)")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <member-id>",
		Short: "Remove member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveMember(ctx, args[0], viper.GetString("member-id"))
			})
		},
	}
}

func planCmd() *cobra.Command {
	c := &cobra.Command{Use: "plan", Short: "Manage plans"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plans, err := r.ListPlans(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(plans)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Sync the plan catalog from config into storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SyncPlans(ctx)
			})
		},
	})
	return c
}

func actionCmd() *cobra.Command {
	c := &cobra.Command{Use: "action", Short: "Manage actions"}
	c.AddCommand(actionCreateCmd())
	c.AddCommand(actionListCmd())
	c.AddCommand(actionShowCmd())
	c.AddCommand(actionUpdateCmd())
	c.AddCommand(actionDoneCmd())
	c.AddCommand(actionReopenCmd())
	c.AddCommand(actionDeleteCmd())
	c.AddCommand(actionCheckCmd())
	return c
}

func actionCreateCmd() *cobra.Command {
	var opts engine.ActionCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				companyID, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				opts.CompanyID = companyID
				opts.ActorID = viper.GetString("member-id")
				a, err := e.CreateAction(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "action title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Objective, "objective", "", "objective")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (LOW, MEDIUM, HIGH, URGENT)")
	cmd.Flags().StringVar(&opts.EstimatedStart, "estimated-start", "", "estimated start (RFC3339)")
	cmd.Flags().StringVar(&opts.EstimatedEnd, "estimated-end", "", "estimated end (RFC3339)")
	cmd.Flags().StringVar(&opts.ResponsibleID, "responsible", "", "responsible member id")
	cmd.Flags().StringVar(&opts.TeamID, "team", "", "team id")
	cmd.Flags().StringArrayVar(&opts.Checklist, "check", []string{}, "checklist item (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func actionListCmd() *cobra.Command {
	var state filter.State
	var scope string
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state.Scope = filter.Scope(scope)
				actions, err := e.ListActions(ctx, state, viper.GetString("member-id"), page, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Responsible", "Late"})
				for _, a := range actions {
					resp := ""
					if a.ResponsibleID != nil {
						resp = *a.ResponsibleID
					}
					late := ""
					if a.IsLate {
						late = "yes"
					}
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, a.Priority, resp, late})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&state.Statuses, "status", nil, "status filter (repeatable)")
	cmd.Flags().StringVar(&state.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&scope, "scope", "all", "scope (all, assigned-to-me, created-by-me, my-teams)")
	cmd.Flags().BoolVar(&state.ShowBlockedOnly, "blocked", false, "only blocked actions")
	cmd.Flags().BoolVar(&state.ShowLateOnly, "late", false, "only late actions")
	cmd.Flags().StringVar(&state.DateFrom, "from", "", "date lower bound")
	cmd.Flags().StringVar(&state.DateTo, "to", "", "date upper bound")
	cmd.Flags().StringVar(&state.DateField, "date-field", "", "date field (created, updated, estimated_start, estimated_end, completed)")
	cmd.Flags().StringVar(&state.TeamID, "team", "", "team filter")
	cmd.Flags().StringVar(&state.Query, "query", "", "title/description search")
	cmd.Flags().StringVar(&state.Objective, "objective", "", "objective search")
	cmd.Flags().StringVar(&state.SortKey, "sort", "", "sort key")
	cmd.Flags().BoolVar(&state.SortDesc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&page, "page", 1, "page")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	return cmd
}

func actionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAction(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func actionUpdateCmd() *cobra.Command {
	var title, description, objective, status, priority, assign string
	var estimatedStart, estimatedEnd, blockedReason, kanbanColumn string
	var blocked bool
	var kanbanOrder int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ActionUpdateOptions{
				ID:       args[0],
				Status:   status,
				Priority: priority,
				ActorID:  viper.GetString("member-id"),
			}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("objective") {
				opts.Objective = &objective
			}
			if cmd.Flags().Changed("assign") {
				opts.Assign = &assign
			}
			if cmd.Flags().Changed("estimated-start") {
				opts.EstimatedStart = &estimatedStart
			}
			if cmd.Flags().Changed("estimated-end") {
				opts.EstimatedEnd = &estimatedEnd
			}
			if cmd.Flags().Changed("blocked") {
				opts.Blocked = &blocked
			}
			if cmd.Flags().Changed("blocked-reason") {
				opts.BlockedReason = &blockedReason
			}
			if cmd.Flags().Changed("kanban-column") {
				opts.KanbanColumn = &kanbanColumn
			}
			if cmd.Flags().Changed("kanban-order") {
				opts.KanbanOrder = &kanbanOrder
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAction(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&objective, "objective", "", "objective")
	cmd.Flags().StringVar(&status, "status", "", "new status (TODO, IN_PROGRESS, DONE)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&assign, "assign", "", "responsible member id (empty clears)")
	cmd.Flags().StringVar(&estimatedStart, "estimated-start", "", "estimated start")
	cmd.Flags().StringVar(&estimatedEnd, "estimated-end", "", "estimated end")
	cmd.Flags().BoolVar(&blocked, "blocked", false, "blocked flag")
	cmd.Flags().StringVar(&blockedReason, "blocked-reason", "", "blocked reason")
	cmd.Flags().StringVar(&kanbanColumn, "kanban-column", "", "kanban column")
	cmd.Flags().IntVar(&kanbanOrder, "kanban-order", 0, "kanban order")
	return cmd
}

func actionDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Complete action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAction(ctx, engine.ActionUpdateOptions{
					ID:      args[0],
					Status:  domain.StatusDone,
					ActorID: viper.GetString("member-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func actionReopenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a completed action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAction(ctx, engine.ActionUpdateOptions{
					ID:      args[0],
					Status:  domain.StatusTodo,
					ActorID: viper.GetString("member-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func actionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAction(ctx, args[0], viper.GetString("member-id"))
			})
		},
	}
}

func actionCheckCmd() *cobra.Command {
	c := &cobra.Command{Use: "check", Short: "Manage checklist items"}
	var title string
	add := &cobra.Command{
		Use:   "add <action-id>",
		Short: "Add checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.AddChecklistItem(ctx, args[0], title, viper.GetString("member-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "item title")
	_ = add.MarkFlagRequired("title")
	var done bool
	set := &cobra.Command{
		Use:   "set <action-id> <item-id>",
		Short: "Mark checklist item done or pending",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SetChecklistItemDone(ctx, args[0], args[1], done, viper.GetString("member-id"))
			})
		},
	}
	set.Flags().BoolVar(&done, "done", true, "done state")
	c.AddCommand(add)
	c.AddCommand(set)
	return c
}

func dashboardCmd() *cobra.Command {
	var preset string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the company dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				companyID, err := app.ResolveCompany(ctx, e.Repo, viper.GetString("company"))
				if err != nil {
					return err
				}
				d, err := e.ComputeDashboard(ctx, preset, companyID, viper.GetString("member-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("%s (%s)\n\n", d.Label, d.Preset)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Value", "Delta"})
				tw.AppendRow(table.Row{"Deliveries", d.Summary.TotalDeliveries, fmt.Sprintf("%+.1f%%", d.Summary.DeliveriesPercentDelta)})
				tw.AppendRow(table.Row{"Completion rate", fmt.Sprintf("%.1f%%", d.Summary.AvgCompletionRate), fmt.Sprintf("%+.1f", d.Summary.CompletionRateDelta)})
				tw.AppendRow(table.Row{"Late", d.Summary.TotalLate, fmt.Sprintf("%+d", d.Summary.LateDelta)})
				tw.AppendRow(table.Row{"Velocity", d.Summary.Velocity, fmt.Sprintf("%+d", d.Summary.VelocityDelta)})
				tw.Render()
				fmt.Println()
				trend := table.NewWriter()
				trend.SetOutputMirror(os.Stdout)
				trend.AppendHeader(table.Row{"Day", "Deliveries"})
				for _, p := range d.Trend {
					trend.AppendRow(table.Row{p.Day.Format("2006-01-02"), p.Count})
				}
				trend.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "period preset (this-week, last-2-weeks, this-month, last-30-days)")
	return cmd
}

func rbacCmd() *cobra.Command {
	c := &cobra.Command{Use: "rbac", Short: "Inspect roles and permissions"}
	c.AddCommand(&cobra.Command{
		Use:   "roles",
		Short: "List roles by rank",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				return printJSON(rbac.Roles())
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Role", "Rank", "Permissions"})
			for _, r := range rbac.Roles() {
				tw.AppendRow(table.Row{r, rbac.Rank(r), len(rbac.PermissionsOf(r))})
			}
			tw.Render()
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "permissions <role>",
		Short: "List a role's permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := rbac.Role(args[0])
			if !rbac.Valid(role) {
				return fmt.Errorf("unknown role %s", args[0])
			}
			return printJSONOrTable(rbac.PermissionsOf(role))
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "can-manage <manager-role> <target-role>",
		Short: "Check whether one role can manage another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, target := rbac.Role(args[0]), rbac.Role(args[1])
			if !rbac.Valid(manager) || !rbac.Valid(target) {
				return fmt.Errorf("unknown role")
			}
			return printJSONOrTable(map[string]any{
				"manager":    manager,
				"target":     target,
				"can_manage": rbac.CanManage(manager, target),
			})
		},
	})
	return c
}

func apikeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name, member string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create API key (plaintext shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("member-id")
				target := member
				if target == "" {
					target = actor
				}
				key, plaintext, err := e.CreateAPIKey(ctx, target, name, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":        key.ID,
					"member_id": key.MemberID,
					"name":      key.Name,
					"key":       plaintext,
				})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringVar(&member, "member", "", "member id (defaults to --member-id)")
	var listMember string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, listMember)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	list.Flags().StringVar(&listMember, "member", "", "member filter")
	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	c.AddCommand(create)
	c.AddCommand(list)
	c.AddCommand(del)
	return c
}

func logCmd() *cobra.Command {
	c := &cobra.Command{Use: "log", Short: "Event log"}
	c.AddCommand(logTailCmd())
	return c
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				companyID, err := app.ResolveCompany(ctx, r, viper.GetString("company"))
				if err != nil {
					return err
				}
				events, err := r.LatestEvents(ctx, n, companyID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default tooldo.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			cfg, err := app.ResolveConfig(workspace)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(cfg.Workspace.ID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	return c
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowHeaderAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if err := e.SyncPlans(cmd.Context()); err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:               os.Getenv("TOOLDO_JWT_SECRET"),
				AllowLegacyMemberHeader: allowHeaderAuth,
			}
			if authCfg.JWTSecret == "" && !allowHeaderAuth {
				return fmt.Errorf("TOOLDO_JWT_SECRET is required for bearer auth (or pass --allow-header-auth for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving ToolDo API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowHeaderAuth, "allow-header-auth", false, "accept X-Member-Id header auth (development only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
