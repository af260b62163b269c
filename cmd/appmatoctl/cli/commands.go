package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/appmato/gestion/internal/fiscal"
)

func newMigrateCmd(deps Deps, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	migrator := func() (Migrator, error) {
		cfg, err := deps.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return deps.NewMigrator(cfg), nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			if err := m.Up(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			if err := m.Down(steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			st, err := m.Status()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"version": st.Version, "dirty": st.Dirty})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", st.Version, st.Dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func newJobsCmd(deps Deps, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Trigger and inspect background jobs"}

	withJobs := func(fn func(*JobsCLI) error) error {
		cfg, err := deps.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		jobsCLI := deps.NewJobs(cfg)
		defer jobsCLI.Close()
		return fn(jobsCLI)
	}

	var trigger TriggerOptions
	triggerCmd := &cobra.Command{
		Use:       "trigger <generate|warmup>",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"generate", "warmup"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0], trigger)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	triggerCmd.Flags().IntVar(&trigger.Year, "year", 0, "fiscal year to generate (default: next year)")
	triggerCmd.Flags().StringVar(&trigger.Dossier, "dossier", "", "restrict generation to one dossier id")

	var scheduled int
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobs(func(c *JobsCLI) error {
				stats, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
				if scheduled <= 0 {
					return nil
				}
				tasks, err := c.ListScheduled(cmd.Context(), scheduled)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Fprintf(out, "  %s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
	inspectCmd.Flags().IntVar(&scheduled, "scheduled", 0, "also list up to N scheduled tasks")

	cmd.AddCommand(triggerCmd, inspectCmd)
	return cmd
}

type profileFlags struct {
	regime    string
	vatMode   string
	vatDueDay int
}

func (p *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.regime, "regime", "", "tax regime (IS, IR, MICRO, REEL_SIMPLIFIE, REEL_NORMAL)")
	cmd.Flags().StringVar(&p.vatMode, "vat-mode", string(fiscal.VATMonthly), "VAT mode (mensuel, trimestriel, annuel, non_assujetti)")
	cmd.Flags().IntVar(&p.vatDueDay, "vat-due-day", fiscal.DefaultVATDueDay, "day of month VAT returns are due")
}

func (p *profileFlags) profile() (fiscal.Profile, error) {
	regime := fiscal.Regime(strings.ToUpper(strings.TrimSpace(p.regime)))
	if regime != "" && !regime.Valid() {
		return fiscal.Profile{}, fmt.Errorf("unknown regime %q", p.regime)
	}
	return fiscal.Profile{
		Regime:    regime,
		VATMode:   fiscal.VATMode(strings.ToLower(strings.TrimSpace(p.vatMode))).Normalize(),
		VATDueDay: p.vatDueDay,
	}, nil
}

func newCalendarCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "calendar", Short: "Query the filing calendar"}

	var dueFlags profileFlags
	var rawType, rawPeriod string
	dueDate := &cobra.Command{
		Use:   "due-date",
		Short: "Compute the due date of one obligation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := dueFlags.profile()
			if err != nil {
				return err
			}
			t, err := fiscal.ParseObligationType(rawType)
			if err != nil {
				return err
			}
			period, err := fiscal.ParsePeriod(rawPeriod)
			if err != nil {
				return err
			}
			due, ok := fiscal.DueDate(profile, t, period)
			if opts.jsonOutput {
				out := map[string]any{"type": t, "reporting_period": period, "applicable": ok}
				if ok {
					out["due_date"] = fiscal.FormatDate(due)
					out["visible_from"] = fiscal.FormatDate(fiscal.VisibleFrom(t, due))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: not applicable\n", t, period)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: due %s (visible from %s)\n",
				t, period, fiscal.FormatDate(due), fiscal.FormatDate(fiscal.VisibleFrom(t, due)))
			return nil
		},
	}
	dueFlags.register(dueDate)
	dueDate.Flags().StringVar(&rawType, "type", string(fiscal.TypeVAT), "obligation type")
	dueDate.Flags().StringVar(&rawPeriod, "period", "", "reporting period YYYY-MM")
	_ = dueDate.MarkFlagRequired("period")

	var schedFlags profileFlags
	var year int
	schedule := &cobra.Command{
		Use:   "schedule",
		Short: "Preview the obligations generated for a fiscal year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := schedFlags.profile()
			if err != nil {
				return err
			}
			if year < 2000 || year > 2100 {
				return fmt.Errorf("year %d out of range", year)
			}
			seeds := fiscal.Schedule(fiscal.Dossier{Regime: profile.Regime, VATMode: profile.VATMode, VATDueDay: profile.VATDueDay}, year)
			if opts.jsonOutput {
				type row struct {
					Type        fiscal.ObligationType `json:"type"`
					Period      fiscal.Period         `json:"period"`
					Installment fiscal.Installment    `json:"installment,omitempty"`
					DueDate     string                `json:"due_date"`
				}
				rows := make([]row, 0, len(seeds))
				for _, s := range seeds {
					rows = append(rows, row{Type: s.Type, Period: s.Period, Installment: s.Installment, DueDate: fiscal.FormatDate(s.DueDate)})
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tPERIOD\tINSTALLMENT\tDUE")
			for _, s := range seeds {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Type, s.Period, s.Installment, fiscal.FormatDate(s.DueDate))
			}
			return tw.Flush()
		},
	}
	schedFlags.register(schedule)
	schedule.Flags().IntVar(&year, "year", 0, "fiscal year")
	_ = schedule.MarkFlagRequired("year")

	cmd.AddCommand(dueDate, schedule)
	return cmd
}
