package main

import (
	"context"
	"fmt"
	"io"

	"github.com/md-rashed-zaman/slotwise/libs/db"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/migrations"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the booking schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), v, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), v, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List embedded migrations without touching the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			migs, err := db.LoadMigrations(migrations.FS)
			if err != nil {
				return err
			}
			for _, m := range migs {
				fmt.Fprintf(cmd.OutOrStdout(), "%03d %s\n", m.Version, m.Name)
			}
			return nil
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, v *viper.Viper, fn func(context.Context, *db.Migrator) error) error {
	cfg, err := loadSettings(v)
	if err != nil {
		return err
	}
	if err := cfg.requireDatabase(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-8s %-32s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-8d %-32s %-8s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
