// Package cli implements appmatoctl, the operator command line for schema
// migrations, worker jobs and filing calendar lookups.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/appmato/gestion/internal/app"
	"github.com/appmato/gestion/internal/platform/db"
)

// Version is injected at build time.
var Version = "dev"

// Migrator applies and inspects schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (db.MigrationStatus, error)
}

// Deps wires external resources into the command tree. Nil fields fall back
// to the production constructors.
type Deps struct {
	Stdout      io.Writer
	Stderr      io.Writer
	LoadConfig  func() (*app.Config, error)
	NewJobs     func(cfg *app.Config) *JobsCLI
	NewMigrator func(cfg *app.Config) Migrator
}

func (d Deps) withDefaults() Deps {
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}
	if d.LoadConfig == nil {
		d.LoadConfig = app.LoadConfig
	}
	if d.NewJobs == nil {
		d.NewJobs = func(cfg *app.Config) *JobsCLI { return NewJobsCLI(cfg.RedisAddr) }
	}
	if d.NewMigrator == nil {
		d.NewMigrator = func(cfg *app.Config) Migrator { return db.NewMigrator(cfg.MigrationsPath, cfg.PGDSN) }
	}
	return d
}

type rootOptions struct {
	jsonOutput bool
}

// NewRootCommand builds the appmatoctl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "appmatoctl",
		Short:         "Operate the Appmato obligation scheduler",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(deps.Stdout)
	cmd.SetErr(deps.Stderr)
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print machine readable JSON")

	cmd.AddCommand(
		newMigrateCmd(deps, opts),
		newJobsCmd(deps, opts),
		newCalendarCmd(opts),
	)
	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(deps Deps, args []string) int {
	root := NewRootCommand(deps)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "error: %v\n", err)
		return 1
	}
	return 0
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
