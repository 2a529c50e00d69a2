package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appgoal "github.com/goalledger/backend/internal/application/goal"
)

const (
	controlsKey  = "ledger:controls"
	notifiersKey = "ledger:notifiers"
)

// RedisControlsStore implements the controls store on Redis so that all
// instances observe admin changes immediately. Controls live in a hash,
// the notifier whitelist in a set.
type RedisControlsStore struct {
	client *redis.Client
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisControlsStore connects to Redis and seeds the controls hash with
// the given defaults if no controls have been written yet.
func NewRedisControlsStore(cfg RedisConfig, initial appgoal.Controls) (*RedisControlsStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := &RedisControlsStore{client: client}
	exists, err := client.Exists(ctx, controlsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to probe controls key: %w", err)
	}
	if exists == 0 {
		if err := s.Update(ctx, initial); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewRedisControlsStoreWithClient creates a store on an existing client.
// Useful for testing or when sharing a client across components.
func NewRedisControlsStoreWithClient(client *redis.Client) *RedisControlsStore {
	return &RedisControlsStore{client: client}
}

// Current returns the controls in effect.
func (s *RedisControlsStore) Current(ctx context.Context) (appgoal.Controls, error) {
	vals, err := s.client.HGetAll(ctx, controlsKey).Result()
	if err != nil {
		return appgoal.Controls{}, fmt.Errorf("failed to read controls: %w", err)
	}
	var c appgoal.Controls
	c.MaxAttachmentsPerGoal, _ = strconv.Atoi(vals["max_per_goal"])
	c.MaxAttachmentsPerOwnerPerGoal, _ = strconv.Atoi(vals["max_per_owner"])
	c.CreationPaused = vals["creation_paused"] == "1"
	c.AttachmentsPaused = vals["attachments_paused"] == "1"
	return c, nil
}

// Update replaces the controls.
func (s *RedisControlsStore) Update(ctx context.Context, c appgoal.Controls) error {
	err := s.client.HSet(ctx, controlsKey,
		"max_per_goal", strconv.Itoa(c.MaxAttachmentsPerGoal),
		"max_per_owner", strconv.Itoa(c.MaxAttachmentsPerOwnerPerGoal),
		"creation_paused", boolField(c.CreationPaused),
		"attachments_paused", boolField(c.AttachmentsPaused),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write controls: %w", err)
	}
	return nil
}

// TrustedNotifier reports whether the identity is whitelisted.
func (s *RedisControlsStore) TrustedNotifier(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, notifiersKey, id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check notifier whitelist: %w", err)
	}
	return ok, nil
}

// SetTrustedNotifier adds or removes an identity from the whitelist.
func (s *RedisControlsStore) SetTrustedNotifier(ctx context.Context, id uuid.UUID, trusted bool) error {
	var err error
	if trusted {
		err = s.client.SAdd(ctx, notifiersKey, id.String()).Err()
	} else {
		err = s.client.SRem(ctx, notifiersKey, id.String()).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to update notifier whitelist: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisControlsStore) Close() error {
	return s.client.Close()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

var _ appgoal.ControlsStore = (*RedisControlsStore)(nil)
