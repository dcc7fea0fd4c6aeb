package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// viewTTL bounds how stale a cached view can get if the writer dies; the
// aggregator rewrites entries every tick.
const viewTTL = 30 * time.Second

// BookCache implements domain.BookCache by storing the latest rendered view
// per tracked book as a JSON blob with a short TTL.
//
// Key schema:
//
//	tf:view:{id}   - JSON-encoded domain.BookView
//	tf:aggregate   - JSON blob with the latest aggregate state and signal
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func viewKey(id string) string { return "tf:view:" + id }

const aggregateKey = "tf:aggregate"

// SetView writes the latest view for a book, replacing any previous entry.
func (bc *BookCache) SetView(ctx context.Context, view domain.BookView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal view %s: %w", view.ID, err)
	}
	if err := bc.rdb.Set(ctx, viewKey(view.ID), data, viewTTL).Err(); err != nil {
		return fmt.Errorf("redis: set view %s: %w", view.ID, err)
	}
	return nil
}

// DeleteView removes the cached view for an untracked book.
func (bc *BookCache) DeleteView(ctx context.Context, id string) error {
	if err := bc.rdb.Del(ctx, viewKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: delete view %s: %w", id, err)
	}
	return nil
}

type aggregateEntry struct {
	State  domain.AggregateState `json:"state"`
	Signal domain.Signal         `json:"signal"`
}

// SetAggregate writes the latest aggregate state and derived signal.
func (bc *BookCache) SetAggregate(ctx context.Context, state domain.AggregateState, sig domain.Signal) error {
	data, err := json.Marshal(aggregateEntry{State: state, Signal: sig})
	if err != nil {
		return fmt.Errorf("redis: marshal aggregate: %w", err)
	}
	if err := bc.rdb.Set(ctx, aggregateKey, data, viewTTL).Err(); err != nil {
		return fmt.Errorf("redis: set aggregate: %w", err)
	}
	return nil
}

// GetAggregate reads the latest aggregate state and signal. It returns
// domain.ErrNotFound when no entry exists.
func (bc *BookCache) GetAggregate(ctx context.Context) (domain.AggregateState, domain.Signal, error) {
	data, err := bc.rdb.Get(ctx, aggregateKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AggregateState{}, domain.Signal{}, domain.ErrNotFound
		}
		return domain.AggregateState{}, domain.Signal{}, fmt.Errorf("redis: get aggregate: %w", err)
	}
	var entry aggregateEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.AggregateState{}, domain.Signal{}, fmt.Errorf("redis: decode aggregate: %w", err)
	}
	return entry.State, entry.Signal, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
