package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sitetrack/internal/config"
	"sitetrack/internal/dashboard"
	"sitetrack/internal/db"
	"sitetrack/internal/domain"
	"sitetrack/internal/engine"
	"sitetrack/internal/kpi"
	"sitetrack/internal/legacy"
	"sitetrack/internal/logger"
	"sitetrack/internal/migrate"
	"sitetrack/internal/repo"
	"sitetrack/internal/server"
	sitetracksdk "sitetrack/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "stk",
	Short: "SiteTrack CLI",
	Long: `SiteTrack tracks fabrication and construction projects end to end.
- Workspace: your .sitetrack directory with the database; sitetrack.yml holds org settings.
- Project: a job with a client, budget, and deadline. Creating one seeds the full
  fabrication workflow as ordered tasks.
- Tasks: the workflow steps. Progress drives status; a step unlocks once the
  earlier ones are completed (use --force when the site ran ahead of paperwork).
- Materials: required vs dispatched quantities; dispatches add to a running total.
- Expenses: dated spend records against the project budget.
- Dashboard: days spent/left, task progress, dispatch percent, and budget remaining.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("SITETRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("project", "", "project id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(materialCmd())
	rootCmd.AddCommand(expenseCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd())
}

func initCmd() *cobra.Command {
	var orgName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("%s already exists", cfgPath)
			}
			if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(orgName)), 0o644); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := seedUsers(ctx, e); err != nil {
					return err
				}
				fmt.Printf("Initialized workspace at %s (config: %s)\n", workspace, cfgPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgName, "org", "SiteTrack", "organization name")
	return cmd
}

func seedUsers(ctx context.Context, e engine.Engine) error {
	if e.Config == nil {
		return nil
	}
	for _, u := range e.Config.Users {
		if u.Password == "" {
			continue
		}
		if err := e.Repo.UpsertUser(ctx, domain.User{
			Name:         u.Name,
			PasswordHash: repo.HashPassword(u.Password),
		}); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Name, err)
		}
	}
	return nil
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectUseCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project and seed its workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, tasks, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "tasks_seeded": len(tasks)})
				}
				fmt.Printf("Created project %s (%s) with %d workflow tasks\n", p.ID, p.Name, len(tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&opts.Location, "location", "", "site location")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&opts.Budget, "budget", 0, "project budget")
	cmd.Flags().StringVar(&opts.Type, "type", "", "project type")
	cmd.Flags().StringVar(&opts.Contractor, "contractor", "", "contractor")
	cmd.Flags().StringVar(&opts.Engineers, "engineers", "", "assigned engineers")
	cmd.Flags().StringVar(&opts.Contact1, "contact1", "", "primary contact")
	cmd.Flags().StringVar(&opts.Contact2, "contact2", "", "secondary contact")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Client", "Deadline", "Budget"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.ClientName, p.Deadline, p.Budget})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, client, location, start, deadline, ptype, contractor, engineers, contact1, contact2 string
	var budget float64
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update project details",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			var u repo.ProjectUpdate
			flagPtr := func(flag string, s *string) *string {
				if cmd.Flags().Changed(flag) {
					return s
				}
				return nil
			}
			u.Name = flagPtr("name", &name)
			u.ClientName = flagPtr("client", &client)
			u.Location = flagPtr("location", &location)
			u.StartDate = flagPtr("start", &start)
			u.Deadline = flagPtr("deadline", &deadline)
			u.Type = flagPtr("type", &ptype)
			u.Contractor = flagPtr("contractor", &contractor)
			u.Engineers = flagPtr("engineers", &engineers)
			u.Contact1 = flagPtr("contact1", &contact1)
			u.Contact2 = flagPtr("contact2", &contact2)
			if cmd.Flags().Changed("budget") {
				u.Budget = &budget
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, target, u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringVar(&location, "location", "", "site location")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&budget, "budget", 0, "project budget")
	cmd.Flags().StringVar(&ptype, "type", "", "project type")
	cmd.Flags().StringVar(&contractor, "contractor", "", "contractor")
	cmd.Flags().StringVar(&engineers, "engineers", "", "assigned engineers")
	cmd.Flags().StringVar(&contact1, "contact1", "", "primary contact")
	cmd.Flags().StringVar(&contact2, "contact2", "", "secondary contact")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete a project and all its records",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteProject(ctx, target, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Deleted project %s\n", target)
				return nil
			})
		},
	}
}

func projectUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <project-id>",
		Short: "Set the default project for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			err := withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				_, err := r.GetProject(ctx, target)
				return err
			})
			if err != nil {
				return err
			}
			envPath := filepath.Join(viper.GetString("workspace"), ".env")
			if err := setEnvValue(envPath, "SITETRACK_PROJECT", target); err != nil {
				return err
			}
			fmt.Printf("Default project set to %s (%s)\n", target, envPath)
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage workflow tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	return task
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflow tasks in step order",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Step", "Responsible", "Due", "Progress", "Status"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Responsible, t.DueDate, fmt.Sprintf("%d%%", t.Progress), t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var id, due string
	var progress int
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a task's progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTaskProgress(ctx, engine.TaskProgressOptions{
					TaskID:   id,
					Progress: progress,
					DueDate:  due,
					Force:    viper.GetBool("force"),
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (e.g. HT-001-T3)")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percent (0-100)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("progress")
	return cmd
}

func materialCmd() *cobra.Command {
	mat := &cobra.Command{Use: "material", Short: "Manage materials"}
	mat.AddCommand(materialListCmd())
	mat.AddCommand(materialAddCmd())
	mat.AddCommand(materialDispatchCmd())
	return mat
}

func materialListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List materials with dispatch balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMaterials(ctx, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Unit", "Required", "Dispatched", "Balance", "Dispatch %"})
				for _, m := range items {
					tw.AppendRow(table.Row{
						m.Name, m.Unit, m.Required, m.Dispatched,
						kpi.MaterialBalance(m), fmt.Sprintf("%d%%", kpi.MaterialProgress(m)),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func materialAddCmd() *cobra.Command {
	var name, unit string
	var required, dispatched float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a material line",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMaterial(ctx, engine.MaterialCreateOptions{
					ProjectID:  target,
					Name:       name,
					Required:   required,
					Dispatched: dispatched,
					Unit:       unit,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "material name")
	cmd.Flags().Float64Var(&required, "required", 0, "required quantity")
	cmd.Flags().Float64Var(&dispatched, "dispatched", 0, "already-dispatched starting quantity")
	cmd.Flags().StringVar(&unit, "unit", "", "unit of measure")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func materialDispatchCmd() *cobra.Command {
	var name string
	var quantity float64
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Record a dispatch against a material",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RecordDispatch(ctx, target, name, quantity, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("%s: dispatched %.2f (total %.2f of %.2f, balance %.2f)\n",
					m.Name, quantity, m.Dispatched, m.Required, kpi.MaterialBalance(m))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "material name")
	cmd.Flags().Float64Var(&quantity, "qty", 0, "quantity to dispatch")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func expenseCmd() *cobra.Command {
	exp := &cobra.Command{Use: "expense", Short: "Manage expenses"}
	exp.AddCommand(expenseListCmd())
	exp.AddCommand(expenseAddCmd())
	return exp
}

func expenseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List expenses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListExpenses(ctx, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Description", "Category", "Amount"})
				var total float64
				for _, x := range items {
					tw.AppendRow(table.Row{x.Date, x.Description, x.Category, x.Amount})
					total += x.Amount
				}
				tw.AppendFooter(table.Row{"", "", "Total", total})
				tw.Render()
				return nil
			})
		},
	}
}

func expenseAddCmd() *cobra.Command {
	var date, description, category string
	var amount float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				x, err := e.AddExpense(ctx, engine.ExpenseCreateOptions{
					ProjectID:   target,
					Date:        date,
					Description: description,
					Amount:      amount,
					Category:    category,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(x)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "expense date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&description, "description", "", "what the money went to")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount spent")
	cmd.Flags().StringVar(&category, "category", "", "expense category")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func dashboardCmd() *cobra.Command {
	var watch bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the project dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ctrl := dashboard.NewController(e)
				snap, err := ctrl.Select(ctx, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				printDashboard(snap, e.Config.Currency())
				if !watch {
					return nil
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						snap, err := ctrl.Refresh(ctx)
						if err != nil {
							// keep showing the last good snapshot
							fmt.Println("refresh failed:", err)
							continue
						}
						printDashboard(snap, e.Config.Currency())
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-render on an interval")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "refresh interval for --watch")
	return cmd
}

func printDashboard(snap engine.Snapshot, currency string) {
	p := snap.Project
	k := snap.KPIs
	fmt.Printf("%s - %s\n", p.ID, p.Name)
	if p.ClientName != "" {
		fmt.Printf("Client: %s", p.ClientName)
		if p.Location != "" {
			fmt.Printf("  Site: %s", p.Location)
		}
		fmt.Println()
	}

	daysSpent := "N/A"
	if k.DaysSpentKnown {
		daysSpent = fmt.Sprintf("%d", k.DaysSpent)
	}
	daysLeft := "N/A"
	if k.DaysLeftKnown {
		if k.Overdue {
			daysLeft = fmt.Sprintf("OVERDUE by %d", k.DaysLeft)
		} else {
			daysLeft = fmt.Sprintf("%d", k.DaysLeft)
		}
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"KPI", "Value"})
	tw.AppendRow(table.Row{"Days spent", daysSpent})
	tw.AppendRow(table.Row{"Days left", daysLeft})
	tw.AppendRow(table.Row{"Task progress", fmt.Sprintf("%d%%", k.TaskProgress)})
	tw.AppendRow(table.Row{"Material dispatch", fmt.Sprintf("%d%%", k.MaterialPercent)})
	tw.AppendRow(table.Row{"Total expenses", fmt.Sprintf("%s %.2f", currency, k.TotalExpenses)})
	tw.AppendRow(table.Row{"Budget remaining", fmt.Sprintf("%s %.2f", currency, k.BudgetRemaining)})
	tw.Render()

	fmt.Println("\nWorkflow:")
	tw = table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Step", "Responsible", "Progress", "Status"})
	for _, t := range snap.Tasks {
		tw.AppendRow(table.Row{t.Name, t.Responsible, fmt.Sprintf("%d%%", t.Progress), t.Status})
	}
	tw.Render()
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage dashboard accounts"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userRemoveCmd())
	return user
}

func userRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("User %s removed\n", args[0])
				return nil
			})
		},
	}
}

func userAddCmd() *cobra.Command {
	var name, password string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertUser(ctx, domain.User{
					Name:         name,
					PasswordHash: repo.HashPassword(password),
				}); err != nil {
					return err
				}
				fmt.Printf("User %s saved\n", name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(users)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Audit log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Events.List(ctx, target, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a legacy tracker export",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			export, err := legacy.Parse(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Import(ctx, export, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				fmt.Printf("Imported %d projects, %d tasks, %d materials, %d expenses\n",
					counts.Projects, counts.Tasks, counts.Materials, counts.Expenses)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "export file (JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, logFile, logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("SITETRACK_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("SITETRACK_JWT_SECRET is required for session auth")
			}
			log, err := logger.New(logger.Options{Level: logLevel, File: logFile})
			if err != nil {
				return err
			}
			defer log.Sync()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := seedUsers(ctx, e); err != nil {
					return err
				}
				authCfg := server.AuthConfig{
					JWTSecret:  secret,
					CookieName: e.Config.CookieName(),
					TTL:        time.Duration(e.Config.TTLHours()) * time.Hour,
					Logger:     log,
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info("serving SiteTrack API",
					zap.String("addr", addr),
					zap.String("base_path", basePath))
				fmt.Printf("Serving SiteTrack API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file with rotation (default: stderr)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func loginCmd() *cobra.Command {
	var serverURL, name, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a SiteTrack server and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := sitetracksdk.New(serverURL)
			if err := client.Login(cmd.Context(), name, password); err != nil {
				return err
			}
			envPath := filepath.Join(viper.GetString("workspace"), ".env")
			if err := setEnvValue(envPath, "SITETRACK_TOKEN", client.BearerToken); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s; token stored in %s\n", name, envPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "server URL")
	cmd.Flags().StringVar(&name, "name", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// --- helpers ---

// requireProject resolves the target project: the --project flag (or
// SITETRACK_PROJECT) wins, else a workspace holding exactly one project
// selects it implicitly.
func requireProject(ctx context.Context) (string, error) {
	if p := viper.GetString("project"); p != "" {
		return p, nil
	}
	var id string
	err := withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		items, err := r.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(items) != 1 {
			return fmt.Errorf("project not specified; use --project or 'stk project use <id>'")
		}
		id = items[0].ID
		return nil
	})
	return id, err
}

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
	cfg, err := config.LoadOptional(workspace)
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
