// Package cli implements the rp operator tool.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/reelworks/reelpress/internal/config"
	"github.com/reelworks/reelpress/internal/logger"
	"github.com/reelworks/reelpress/internal/queue"
	"github.com/reelworks/reelpress/internal/storage"
	"github.com/reelworks/reelpress/internal/version"
	"github.com/reelworks/reelpress/internal/video"
)

// App carries lazily-built dependencies shared by the subcommands.
type App struct {
	Cfg     *config.Config
	Printer *Printer

	pool *pgxpool.Pool
	rdb  *redis.Client
}

func (a *App) Videos(ctx context.Context) (video.Store, error) {
	if a.pool == nil {
		pool, err := pgxpool.New(ctx, a.Cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
	}
	return video.NewPostgresStore(a.pool), nil
}

func (a *App) Queue(ctx context.Context) (*queue.Client, error) {
	if a.rdb == nil {
		opts, err := redis.ParseURL(a.Cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.rdb = redis.NewClient(opts)
	}
	client := queue.NewClient(a.rdb, queue.Config{
		Stream:       a.Cfg.QueueStream,
		Group:        a.Cfg.QueueGroup,
		Consumer:     "rp-cli",
		LeaseTimeout: a.Cfg.LeaseTimeout,
		PollWait:     a.Cfg.PollWait,
	})
	if err := client.EnsureGroup(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *App) Storage() (storage.Storage, error) {
	return storage.New(a.Cfg.StorageBackend, a.Cfg.LocalBasePath, storage.Config{
		Endpoint:  a.Cfg.MinIOEndpoint,
		AccessKey: a.Cfg.MinIOAccessKey,
		SecretKey: a.Cfg.MinIOSecretKey,
		Bucket:    a.Cfg.MinIOBucket,
		UseSSL:    a.Cfg.MinIOUseSSL,
		Region:    a.Cfg.MinIORegion,
	})
}

func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// NewRootCommand builds the rp command tree.
func NewRootCommand() *cobra.Command {
	app := &App{}
	var jsonMode, quiet bool
	var envFile string

	root := &cobra.Command{
		Use:           "rp",
		Short:         "Operate the reelpress video pipeline",
		Version:       fmt.Sprintf("%s (%s)", version.Version, version.Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load env file %q: %w", envFile, err)
				}
			} else {
				_ = godotenv.Load()
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel)
			app.Cfg = cfg
			app.Printer = NewPrinter(cmd.OutOrStdout(), jsonMode, quiet)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	root.PersistentFlags().BoolVar(&jsonMode, "json", false, "emit machine-readable JSON")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress decorative output")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file")

	root.AddCommand(
		newEnqueueCommand(app),
		newStatusCommand(app),
		newURLCommand(app),
		newDepthCommand(app),
	)
	return root
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
