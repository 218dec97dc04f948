package health

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// DBChecker reports whether the Postgres pool answers a ping.
func DBChecker(name string, db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	}
}

// RedisChecker reports whether the Redis rate-limit backend answers a ping.
func RedisChecker(name string, client *redis.Client) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	}
}
