package monitoring

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DatabaseProbe pings the database handle behind db.
func DatabaseProbe(db *gorm.DB) Probe {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// RedisProbe pings the Redis server shared by distributed rate limits.
func RedisProbe(client redis.UniversalClient) Probe {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		return client.Ping(ctx).Err()
	}
}
