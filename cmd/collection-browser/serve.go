package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/collection-loader/pkg/client"
	"github.com/Sternrassler/collection-loader/pkg/logging"
	"github.com/Sternrassler/collection-loader/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	proxyTimeout    = 30 * time.Second
	readyTimeout    = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Headers copied from cached upstream responses.
var forwardedHeaders = []string{"Content-Type", "ETag", "Last-Modified", "Cache-Control"}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the caching CMS proxy with health, readiness and metrics endpoints.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.NewLogger("server")

			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
				logger.Info().Str("redis", rdb.Options().Addr).Msg("Connected to Redis")
			} else {
				logger.Warn().Msg("Redis not configured, using in-process cache only")
			}

			cmsClient, err := a.newClient(rdb)
			if err != nil {
				return fmt.Errorf("create CMS client: %w", err)
			}

			srv := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           newHandler(cmsClient, rdb),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().
					Str("addr", srv.Addr).
					Str("upstream", a.cfg.BaseURL).
					Str("user_agent", a.cfg.UserAgent).
					Msg("Starting CMS proxy")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

type server struct {
	client *client.Client
	redis  *redis.Client
	logger *zerolog.Logger
}

// newHandler builds the proxy routes. rdb may be nil.
func newHandler(cmsClient *client.Client, rdb *redis.Client) http.Handler {
	s := &server{
		client: cmsClient,
		redis:  rdb,
		logger: logging.Component("proxy"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.ready)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /collections/{collection}/items", s.proxy)
	mux.HandleFunc("GET /collections/{collection}/items/{item}", s.proxy)
	return mux
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) proxy(w http.ResponseWriter, r *http.Request) {
	path := "/items"
	if item := r.PathValue("item"); item != "" {
		path += "/" + url.PathEscape(item)
	}

	ctx, cancel := context.WithTimeout(r.Context(), proxyTimeout)
	defer cancel()

	resp, err := s.client.Fetch(ctx, r.PathValue("collection"), path, r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	for _, key := range forwardedHeaders {
		if v := resp.Header.Get(key); v != "" {
			w.Header().Set(key, v)
		}
	}
	if resp.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var cmsErr *client.CMSError
	if errors.As(err, &cmsErr) && cmsErr.StatusCode >= 400 {
		status = cmsErr.StatusCode
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
