package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/coastmedia-api/internal/app"
	"github.com/noah-isme/coastmedia-api/internal/auth"
	"github.com/noah-isme/coastmedia-api/internal/catalog"
	"github.com/noah-isme/coastmedia-api/internal/config"
	"github.com/noah-isme/coastmedia-api/internal/lock"
)

func newRootCmd(logger zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "catalogctl",
		Short:        "Manage the coastmedia database and catalog",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(logger), newSeedCmd(logger), newHashPasswordCmd())
	return root
}

func openPool(ctx context.Context) (*pgxpool.Pool, *config.Stores, error) {
	st, err := config.LoadStores()
	if err != nil {
		return nil, nil, err
	}
	pool, err := app.OpenPostgres(ctx, st.DatabaseURL, "catalogctl")
	if err != nil {
		return nil, nil, err
	}
	return pool, st, nil
}

func newMigrateCmd(logger zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	withMigrator := func(fn func(*migrate.Migrate) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			pool, _, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			m, err := app.NewMigrator(pool)
			if err != nil {
				return err
			}
			return fn(m)
		}
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrate) error {
			if err := app.RunMigrations(m); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
			return nil
		}),
	}
	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrate) error {
			if steps <= 0 {
				return errors.New("--steps must be positive")
			}
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			logger.Info().Int("steps", steps).Msg("migrations rolled back")
			return nil
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *migrate.Migrate) error {
			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("none")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%d dirty=%t\n", v, dirty)
			return nil
		}),
	}
	cmd.AddCommand(up, down, version)
	return cmd
}

func newSeedCmd(logger zerolog.Logger) *cobra.Command {
	var (
		file   string
		update bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog services, add-ons and bundles from YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data := catalog.DefaultSeed
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read seed file: %w", err)
				}
				data = b
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			pool, st, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcCfg := catalog.ServiceConfig{Store: catalog.PgStore{DB: pool}, Logger: logger}
			var locker *lock.Locker
			if st.RedisURL != "" {
				rdb, err := app.OpenRedis(ctx, st.RedisURL, false, logger)
				if err != nil {
					logger.Warn().Err(err).Msg("redis unavailable; cached catalog will expire on its own")
				} else {
					defer rdb.Close()
					svcCfg.Cache = catalog.NewCache(rdb, st.CatalogCacheTTL)
					locker = &lock.Locker{R: rdb, Prefix: "lock:", Poll: 250 * time.Millisecond}
				}
			}
			svc, err := catalog.NewService(svcCfg)
			if err != nil {
				return err
			}
			if locker != nil {
				lease, err := locker.Wait(ctx, "catalog:seed", 2*time.Minute)
				if err != nil {
					return fmt.Errorf("wait for seed lock: %w", err)
				}
				defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()
			}
			res, err := svc.Seed(ctx, data, catalog.SeedOptions{Update: update})
			if err != nil {
				return err
			}
			logger.Info().Int("created", res.Created).Int("updated", res.Updated).Int("skipped", res.Skipped).Msg("catalog seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed file (defaults to the embedded catalog)")
	cmd.Flags().BoolVar(&update, "update", false, "overwrite entries whose key already exists")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an argon2id hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}
			if password == "" {
				return errors.New("password is empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
