package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"intake-chat/internal/adapters/repository"
	"intake-chat/internal/config"
)

// connectMariaDB attempts to connect to MariaDB with retry logic
// Retries are necessary because Docker containers may still be initializing
func connectMariaDB(ctx context.Context, cfg config.DBConfig, maxRetries int, retryDelay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("configure mysql driver: %w", err)
	}

	for i := 1; i <= maxRetries; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}

		slog.Warn("Cannot ping MariaDB", "attempt", i, "max_attempts", maxRetries, "error", err)

		if i < maxRetries {
			if !sleep(ctx, retryDelay) {
				break
			}
		}
	}

	db.Close()
	return nil, fmt.Errorf("cannot connect to MariaDB after %d attempts: %w", maxRetries, err)
}

// connectRedis attempts to connect to Redis with retry logic
func connectRedis(ctx context.Context, cfg config.RedisConfig, maxRetries int, retryDelay time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})

	var err error
	for i := 1; i <= maxRetries; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return rdb, nil
		}

		slog.Warn("Cannot ping Redis", "attempt", i, "max_attempts", maxRetries, "error", err)

		if i < maxRetries {
			if !sleep(ctx, retryDelay) {
				break
			}
		}
	}

	rdb.Close()
	return nil, fmt.Errorf("cannot connect to Redis after %d attempts: %w", maxRetries, err)
}

// runRetentionPurge deletes exchange logs older than retention every interval
// Each tick drains the backlog in batches
func runRetentionPurge(ctx context.Context, repo *repository.MariaDBRepository, retention, interval time.Duration) {
	if retention <= 0 {
		slog.Info("[PURGE] Retention disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("[PURGE] Service started", "retention", retention, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("[PURGE] Service stopped")
			return
		case now := <-ticker.C:
			cutoff := now.Add(-retention)
			var total int64
			for {
				n, err := repo.PurgeBefore(ctx, cutoff)
				if err != nil {
					break
				}
				total += n
				if n < 1000 {
					break
				}
			}
			if total > 0 {
				slog.Info("[PURGE] Deleted old exchange logs", "rows", total, "cutoff", cutoff)
			}
		}
	}
}

// sleep waits for d and reports false when ctx ends first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
