package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/storage"
	"github.com/bgbye/bgbye/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	payloadKeyPrefix = "payload:"
	prefKeyPrefix    = "pref:"

	maxUpdateAttempts = 10
)

// RedisRepository implements the session, payload and preference stores with Redis
type RedisRepository struct {
	client     *redis.Client
	sessionTTL time.Duration
	payloadTTL time.Duration
}

var (
	_ storage.SessionRepository = (*RedisRepository)(nil)
	_ storage.PayloadStore      = (*RedisRepository)(nil)
	_ storage.PreferenceStore   = (*RedisRepository)(nil)
)

// RedisOptions contains options for Redis configuration
type RedisOptions struct {
	// Address is the Redis server address
	Address string

	// Password is the Redis password
	Password string

	// DB is the Redis database number
	DB int

	// SessionTTL is the expiration of session keys, refreshed on every write
	SessionTTL time.Duration

	// PayloadTTL is the expiration of payload keys
	PayloadTTL time.Duration
}

// DefaultRedisOptions returns sensible defaults for Redis
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Address:    "localhost:6379",
		Password:   "",
		DB:         0,
		SessionTTL: 2 * time.Hour,
		PayloadTTL: 2 * time.Hour,
	}
}

// NewRedisRepository creates a new Redis repository
func NewRedisRepository(options RedisOptions) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})

	// Test connection
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRepositoryWithClient(client, options), nil
}

// NewRedisRepositoryWithClient wraps an existing client without pinging it
func NewRedisRepositoryWithClient(client *redis.Client, options RedisOptions) *RedisRepository {
	d := DefaultRedisOptions()
	if options.SessionTTL <= 0 {
		options.SessionTTL = d.SessionTTL
	}
	if options.PayloadTTL <= 0 {
		options.PayloadTTL = d.PayloadTTL
	}
	return &RedisRepository{
		client:     client,
		sessionTTL: options.SessionTTL,
		payloadTTL: options.PayloadTTL,
	}
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func payloadKey(h string) string { return payloadKeyPrefix + h }
func prefKey(name string) string { return prefKeyPrefix + name }

// Save stores a new session
func (r *RedisRepository) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session ID is required", storage.ErrInvalidSessionData)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(session.ID), data, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

// Get retrieves a session
func (r *RedisRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: session with ID %s not found", storage.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to retrieve session from Redis: %w", err)
	}
	return decodeSession(data)
}

// Update applies fn inside an optimistic WATCH transaction, retrying when
// another writer touched the key first
func (r *RedisRepository) Update(ctx context.Context, id string, fn func(s *models.Session) error) (*models.Session, error) {
	key := sessionKey(id)
	var result *models.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: session with ID %s not found", storage.ErrSessionNotFound, id)
			}
			return err
		}

		session, err := decodeSession(data)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}

		out, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to serialize session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.sessionTTL)
			return nil
		})
		if err == nil {
			result = session
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: session %s", storage.ErrConcurrentModification, id)
}

// List returns every session, newest first
func (r *RedisRepository) List(ctx context.Context) ([]*models.Session, error) {
	var result []*models.Session

	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to retrieve session from Redis: %w", err)
		}
		session, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes a session
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: session with ID %s not found", storage.ErrSessionNotFound, id)
	}
	return nil
}

// FindOlderThan returns sessions last updated before cutoff
func (r *RedisRepository) FindOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []*models.Session
	for _, s := range all {
		if s.UpdatedAt.Before(cutoff) {
			result = append(result, s)
		}
	}
	return result, nil
}

// PutPayload stores a payload hash under a fresh handle
func (r *RedisRepository) PutPayload(ctx context.Context, payload *models.Payload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}
	handle := utils.GenerateID()
	createdAt := payload.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	key := payloadKey(handle)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"content_type", payload.ContentType,
			"created_at", createdAt.Format(time.RFC3339Nano),
			"data", payload.Data,
		)
		pipe.Expire(ctx, key, r.payloadTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store payload in Redis: %w", err)
	}

	payload.Handle = handle
	payload.CreatedAt = createdAt
	return handle, nil
}

// GetPayload retrieves a payload by handle
func (r *RedisRepository) GetPayload(ctx context.Context, handle string) (*models.Payload, error) {
	fields, err := r.client.HGetAll(ctx, payloadKey(handle)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payload from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrPayloadNotFound, handle)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return &models.Payload{
		Handle:      handle,
		ContentType: fields["content_type"],
		Data:        []byte(fields["data"]),
		CreatedAt:   createdAt,
	}, nil
}

// ReleasePayloads deletes payload keys
func (r *RedisRepository) ReleasePayloads(ctx context.Context, handles ...string) error {
	if len(handles) == 0 {
		return nil
	}
	keys := make([]string, len(handles))
	for i, h := range handles {
		keys[i] = payloadKey(h)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to release payloads: %w", err)
	}
	return nil
}

// CountPayloads counts live payload keys
func (r *RedisRepository) CountPayloads(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, payloadKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan payloads: %w", err)
	}
	return count, nil
}

// GetPreference reads a preference key
func (r *RedisRepository) GetPreference(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, prefKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read preference: %w", err)
	}
	return v, true, nil
}

// SetPreference writes a preference key without expiry
func (r *RedisRepository) SetPreference(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, prefKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write preference: %w", err)
	}
	return nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	if session.Results == nil {
		session.Results = make(map[models.Method]models.SubmissionResult)
	}
	if session.Processing == nil {
		session.Processing = make(map[models.Method]bool)
	}
	return &session, nil
}
