package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.StatusRepository = (*StatusRepo)(nil)

// StatusRepo keeps the status document as JSON under a single key so several
// bot processes can share it.
type StatusRepo struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

// NewStatusRepo stores under key; ttl <= 0 keeps the key forever.
func NewStatusRepo(client RedisClient, key string, ttl time.Duration) *StatusRepo {
	if key == "" {
		key = "sms_hunter:status"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &StatusRepo{client: client, key: key, ttl: ttl}
}

func (s *StatusRepo) Load(ctx context.Context) (*model.StatusDocument, error) {
	data, err := s.client.Get(ctx, s.key)
	if errors.Is(err, redis.Nil) {
		return model.NewStatusDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get status: %w", err)
	}

	doc := model.NewStatusDocument()
	if err := json.Unmarshal([]byte(data), doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptStatus, err)
	}
	return doc, nil
}

func (s *StatusRepo) Save(ctx context.Context, doc *model.StatusDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl); err != nil {
		return fmt.Errorf("redis set status: %w", err)
	}
	return nil
}

func (s *StatusRepo) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key)
}
