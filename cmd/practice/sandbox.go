package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bharatemr/practice/internal/platform/blobstore"
	"github.com/bharatemr/practice/internal/platform/db"
	"github.com/bharatemr/practice/internal/platform/sandbox"
	"github.com/bharatemr/practice/internal/platform/session"
)

func sandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run and manage the local sandbox backend",
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(tokenCmd())
	cmd.AddCommand(migrateCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sandbox API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			noSeed, _ := cmd.Flags().GetBool("no-seed")
			return runServer(!noSeed)
		},
	}
	cmd.Flags().Bool("no-seed", false, "Keep existing records instead of generating sample data")
	return cmd
}

func runServer(seed bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	// Store
	var store sandbox.Store
	srvCfg := sandbox.ServerConfig{
		SigningKey:     []byte(cfg.SandboxSigningKey),
		RequestTimeout: cfg.RequestTimeout,
		BodyLimit:      "2M",
	}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		n, err := sandbox.NewMigrator(pool).Up(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info().Int("applied", n).Msg("database ready")
		store = sandbox.NewPGStore(pool)
		srvCfg.DB = pool
		srvCfg.Stats = func() *db.PoolStats { return db.GetPoolStats(pool) }
	} else {
		store = sandbox.NewMemoryStore()
		logger.Info().Msg("using in-memory store")
	}

	if seed {
		seeder := sandbox.NewSeeder(sandbox.SeedConfig{PatientCount: cfg.SandboxPatients, Seed: cfg.SandboxSeed})
		result, err := seeder.Generate(ctx, store)
		if err != nil {
			return fmt.Errorf("seeding sandbox: %w", err)
		}
		logger.Info().
			Int("patients", result.Patients).
			Int("visits", result.Visits).
			Int("follow_ups", result.FollowUps).
			Dur("duration", result.Duration).
			Msg("sandbox seeded")
		for _, d := range seeder.Doctors() {
			logger.Info().Str("doctor_id", d.ID).Str("name", d.Name).Msg("seeded doctor")
		}
	}

	e := sandbox.NewServer(srvCfg, store, blobstore.NewMemoryStore(), logger)

	// Start server
	addr := ":" + cfg.SandboxPort
	go func() {
		logger.Info().Str("addr", addr).Msg("starting sandbox server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a sandbox API token",
		Example: `  practice sandbox token --role DOCTOR --id D-001 --name "Dr. Kavita Rao"
  export API_TOKEN=$(practice sandbox token --role ADMIN --id admin)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			id, _ := cmd.Flags().GetString("id")
			name, _ := cmd.Flags().GetString("name")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := session.ParseRole(role)
			if err != nil {
				return err
			}
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			raw, err := sandbox.MintToken([]byte(cfg.SandboxSigningKey), session.User{ID: id, Role: r, Name: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().String("role", string(session.RoleDoctor), "DOCTOR, PATIENT or ADMIN")
	cmd.Flags().String("id", sandbox.DoctorID(1), "User id (a doctor id or a patient record id)")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run sandbox database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, at := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							at = s.AppliedAt.Format(time.RFC3339)
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, at)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, sandbox.NewMigrator(pool))
}
