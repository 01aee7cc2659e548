package main

import (
	"fmt"
	"strconv"

	"airline-booking/internal/database"
	"airline-booking/internal/database/migrations"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the booking schema",
	}
	cmd.PersistentFlags().String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations, including sample flights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(r *migrations.Runner) error {
				if err := r.Up(); err != nil {
					return err
				}
				return printVersion(cmd, r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withRunner(cmd, func(r *migrations.Runner) error {
				if err := r.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd, r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "goto [version]",
		Short: "Migrate up or down to a version (default: schema only, no sample data)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := migrations.SchemaVersion
			if len(args) == 1 {
				n, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil || n == 0 {
					return fmt.Errorf("version must be a positive integer, got %q", args[0])
				}
				target = uint(n)
			}
			return withRunner(cmd, func(r *migrations.Runner) error {
				if err := r.To(target); err != nil {
					return err
				}
				return printVersion(cmd, r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(r *migrations.Runner) error {
				return printVersion(cmd, r)
			})
		},
	})

	return cmd
}

func withRunner(cmd *cobra.Command, fn func(*migrations.Runner) error) error {
	cfg, log := setup()
	defer log.Close()

	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Migrations.Dir = dir
	}

	db, err := database.ConnectPGDriver(cmd.Context(), cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	// the runner closes the underlying *sql.DB
	runner := migrations.NewRunner(db.DB, cfg.Migrations, log)
	defer runner.Close()

	return fn(runner)
}

func printVersion(cmd *cobra.Command, r *migrations.Runner) error {
	version, dirty, err := r.Version()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("schema version %d (%s)\n", version, state)
	return nil
}
