// Package auditstream mirrors audit entries onto a Redis stream so other
// services can follow them.
package auditstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fellowship/internal/domain/audit"
)

// maxLen caps the stream length. Trimming is approximate.
const maxLen = 100000

// adder is the part of the Redis client the publisher needs.
type adder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher appends audit entries to a stream with XADD.
type Publisher struct {
	client adder
	stream string
}

// NewPublisher wraps an existing client.
// PRE: stream is non-empty
func NewPublisher(client adder, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// Connect parses a redis:// URL and verifies the server answers.
// POST: returns a connected client or an error
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Publish adds e to the stream and returns the generated stream ID.
func (p *Publisher) Publish(ctx context.Context, e audit.Entry) (string, error) {
	values, err := fields(e)
	if err != nil {
		return "", err
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to XADD to stream %s: %w", p.stream, err)
	}
	return id, nil
}

// fields flattens an entry into stream field/value pairs. Metadata is
// carried as a JSON string.
func fields(e audit.Entry) (map[string]any, error) {
	values := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"category":      string(e.Category),
		"action":        string(e.Action),
		"severity":      string(e.Severity),
		"actor_id":      e.ActorID,
		"actor_email":   e.ActorEmail,
		"actor_role":    e.ActorRole,
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"description":   e.Description,
	}
	if len(e.Metadata) > 0 {
		md, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		values["metadata"] = string(md)
	}
	return values, nil
}
