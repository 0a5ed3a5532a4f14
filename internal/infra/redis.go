// README: Redis client initialization for the open-call GEO index.
package infra

import (
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedis(addr string, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}
