package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/pdf-extractor/internal/models"
)

const (
	redisJobKeyPrefix = "job:"
	redisJobTTL       = 7 * 24 * time.Hour
	redisOpTimeout    = 5 * time.Second
)

// RedisStore is the DurableStore used when multiple server or worker
// processes share one job table.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Save(view models.JobView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", view.JobID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, redisJobKeyPrefix+view.JobID, data, redisJobTTL).Err(); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", view.JobID, err)
	}
	return nil
}

func (s *RedisStore) Load(jobID string) (*models.JobView, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	data, err := s.client.Get(ctx, redisJobKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	var view models.JobView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &view, nil
}

func (s *RedisStore) List() ([]models.JobSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var summaries []models.JobSummary
	iter := s.client.Scan(ctx, 0, redisJobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		jobID := strings.TrimPrefix(iter.Val(), redisJobKeyPrefix)
		view, err := s.Load(jobID)
		if err != nil {
			continue
		}
		summaries = append(summaries, models.JobSummary{
			JobID:     view.JobID,
			Status:    view.Status,
			CreatedAt: view.CreatedAt,
			UpdatedAt: view.UpdatedAt,
			Filename:  view.Filename,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return summaries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
