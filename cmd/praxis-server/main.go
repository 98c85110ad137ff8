package main

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/praxis/praxis/internal/config"
	"github.com/praxis/praxis/internal/platform/auth"
	"github.com/praxis/praxis/internal/platform/db"
	"github.com/praxis/praxis/migrations"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "praxis-server",
		Short: "Practitioner availability API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// tenantSchema resolves the --tenant flag, falling back to DEFAULT_TENANT.
func tenantSchema(cmd *cobra.Command, cfg *config.Config) (string, string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}
	return tenant, db.SchemaName(tenant)
}

func printStatus(st db.MigrationStatus) {
	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	if !st.Applied {
		fmt.Printf("Schema %s: no migrations applied\n", st.Schema)
		return
	}
	fmt.Printf("Schema %s: version %d (%s)\n", st.Schema, st.Version, state)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tenant, schema := tenantSchema(cmd, cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.CreateTenantSchema(ctx, pool, tenant, nil); err != nil {
				return err
			}

			fmt.Printf("Running migrations on schema: %s\n", schema)
			st, err := db.NewMigrator(cfg.DatabaseURL, migrations.FS).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			printStatus(st)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			_, schema := tenantSchema(cmd, cfg)

			st, err := db.NewMigrator(cfg.DatabaseURL, migrations.FS).Status(context.Background(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(st)
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	// migrate down
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			_, schema := tenantSchema(cmd, cfg)

			st, err := db.NewMigrator(cfg.DatabaseURL, migrations.FS).Down(context.Background(), schema)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			printStatus(st)
			return nil
		},
	}
	cmd.AddCommand(downCmd)

	for _, sub := range cmd.Commands() {
		sub.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	}
	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			migrator := db.NewMigrator(cfg.DatabaseURL, migrations.FS)
			if err := db.CreateTenantSchema(ctx, pool, name, migrator); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

// parseExpiry reads --expires-at, defaulting to one hour from now.
func parseExpiry(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.Add(time.Hour), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--expires-at must be an RFC 3339 timestamp: %w", err)
	}
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("--expires-at %s is already in the past", raw)
	}
	return t, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage issued tokens",
	}

	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a token by its jti",
		RunE: func(cmd *cobra.Command, args []string) error {
			jti, _ := cmd.Flags().GetString("jti")
			if jti == "" {
				return fmt.Errorf("--jti is required")
			}
			rawExpiry, _ := cmd.Flags().GetString("expires-at")
			expiresAt, err := parseExpiry(rawExpiry, time.Now())
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// An in-memory store lives inside the server process and cannot be reached from here.
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required to revoke tokens from the command line")
			}

			ctx := context.Background()
			client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := auth.NewRedisRevocationStore(client).Revoke(ctx, jti, expiresAt); err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}
			fmt.Printf("Token %s revoked until %s\n", jti, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	revokeCmd.Flags().String("jti", "", "Token id to revoke")
	revokeCmd.Flags().String("expires-at", "", "When the token expires (RFC 3339); defaults to one hour from now")

	cmd.AddCommand(revokeCmd)
	return cmd
}
