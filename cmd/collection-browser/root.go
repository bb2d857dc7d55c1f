package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/collection-loader/pkg/client"
	"github.com/Sternrassler/collection-loader/pkg/config"
	"github.com/Sternrassler/collection-loader/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app carries state shared by the subcommands.
type app struct {
	getenv     func(string) string
	configPath string
	baseURL    string

	cfg config.Config
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv}

	root := &cobra.Command{
		Use:          "collection-browser",
		Short:        "collection-browser proxies and browses CMS collections.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "JSON5 config file (a .local override next to it is merged)")
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "CMS proxy base URL, overrides "+config.EnvBaseURL)

	root.AddCommand(newServeCmd(a), newBrowseCmd(a))
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	getenv := a.getenv
	if a.baseURL != "" {
		getenv = func(key string) string {
			if key == config.EnvBaseURL {
				return a.baseURL
			}
			return a.getenv(key)
		}
	}

	cfg, err := config.Load(a.configPath, getenv)
	if err != nil {
		return err
	}
	cfg.Log.Output = cmd.ErrOrStderr()
	logging.Setup(cfg.Log)

	a.cfg = cfg
	return nil
}

// redisClient connects to the configured Redis. It returns nil when Redis
// is not configured.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	opts, err := a.cfg.RedisOptions()
	if err != nil || opts == nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func (a *app) newClient(rdb *redis.Client) (*client.Client, error) {
	return client.New(a.cfg.ClientConfig(rdb))
}
