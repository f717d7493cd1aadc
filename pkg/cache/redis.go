package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/rdc-learning-api/pkg/config"
)

// Key prefixes for cached read models. Writers invalidate by prefix.
const (
	PrefixCourse           = "course:"
	PrefixStudentDashboard = "dashboard:student:"
	PrefixSettings         = "settings:"
)

// CourseKey is the cache key of a course detail payload.
func CourseKey(courseID string) string {
	return PrefixCourse + courseID
}

// StudentEnrollmentsKey is the cache key of a student's enrollment list.
func StudentEnrollmentsKey(userID string) string {
	return PrefixStudentDashboard + userID + ":enrollments"
}

// NewRedis returns a configured Redis client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
