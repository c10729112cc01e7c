// Package redis implements the cart repository on Redis hashes.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/bookstore/internal/domain/cart"
)

// DefaultRetention is how long a cart cleared under a key stays restorable.
const DefaultRetention = time.Hour

// Each cart is a hash of book id to quantity. A cart cleared with a key is
// renamed to a snapshot key in the same hash slot.
var (
	// KEYS: cart, snapshot. ARGV: retention seconds.
	clearScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('RENAME', KEYS[1], KEYS[2])
redis.call('EXPIRE', KEYS[2], ARGV[1])
return 1
`)

	// KEYS: cart, snapshot.
	restoreScript = redis.NewScript(`
local snap = redis.call('HGETALL', KEYS[2])
local n = 0
for i = 1, #snap, 2 do
  n = n + redis.call('HSETNX', KEYS[1], snap[i], snap[i + 1])
end
redis.call('DEL', KEYS[2])
return n
`)

	// KEYS: cart. ARGV: book id. Returns -1 when the line is absent.
	incrementScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

	// KEYS: cart. ARGV: book id. Returns -1 when the line is absent.
	decrementScript = redis.NewScript(`
local q = redis.call('HGET', KEYS[1], ARGV[1])
if not q then
  return -1
end
q = tonumber(q) - 1
if q <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], tostring(q))
return q
`)
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by Redis.
type CartRepository struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewCartRepository returns a CartRepository. A non-positive retention
// selects DefaultRetention.
func NewCartRepository(client redis.UniversalClient, retention time.Duration) *CartRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &CartRepository{client: client, retention: retention}
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:{%d}", userID)
}

func snapshotKey(userID int64, key string) string {
	return fmt.Sprintf("cart:{%d}:cleared:%s", userID, key)
}

// List returns the cart lines ordered by book id.
func (r *CartRepository) List(ctx context.Context, userID int64) ([]cart.Line, error) {
	m, err := r.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	lines := make([]cart.Line, 0, len(m))
	for field, value := range m {
		bookID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "cart field %q", field)
		}
		q, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.Wrapf(err, "cart quantity %q", value)
		}
		lines = append(lines, cart.Line{BookID: bookID, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].BookID < lines[j].BookID })
	return lines, nil
}

// Add puts bookID in the cart with quantity one.
func (r *CartRepository) Add(ctx context.Context, userID, bookID int64) error {
	ok, err := r.client.HSetNX(ctx, cartKey(userID), strconv.FormatInt(bookID, 10), 1).Result()
	if err != nil {
		return errors.Wrap(err, "add to cart")
	}
	if !ok {
		return cart.ErrAlreadyInCart
	}
	return nil
}

// Remove deletes the line for bookID.
func (r *CartRepository) Remove(ctx context.Context, userID, bookID int64) error {
	n, err := r.client.HDel(ctx, cartKey(userID), strconv.FormatInt(bookID, 10)).Result()
	if err != nil {
		return errors.Wrap(err, "remove from cart")
	}
	if n == 0 {
		return cart.ErrNotInCart
	}
	return nil
}

// Increment adds one copy of bookID.
func (r *CartRepository) Increment(ctx context.Context, userID, bookID int64) (int, error) {
	return r.step(ctx, incrementScript, userID, bookID)
}

// Decrement removes one copy of bookID, dropping the line at zero.
func (r *CartRepository) Decrement(ctx context.Context, userID, bookID int64) (int, error) {
	return r.step(ctx, decrementScript, userID, bookID)
}

func (r *CartRepository) step(ctx context.Context, script *redis.Script, userID, bookID int64) (int, error) {
	q, err := script.Run(ctx, r.client, []string{cartKey(userID)}, bookID).Int()
	if err != nil {
		return 0, errors.Wrap(err, "update cart quantity")
	}
	if q < 0 {
		return 0, cart.ErrNotInCart
	}
	return q, nil
}

// Clear empties the cart. With a key the lines stay restorable for the
// retention period, and repeating the call with the same key changes
// nothing.
func (r *CartRepository) Clear(ctx context.Context, userID int64, key string) error {
	if key == "" {
		if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	}
	keys := []string{cartKey(userID), snapshotKey(userID, key)}
	if err := clearScript.Run(ctx, r.client, keys, int64(r.retention/time.Second)).Err(); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Restore merges the lines cleared under key back into the cart. Lines
// present now win over restored ones.
func (r *CartRepository) Restore(ctx context.Context, userID int64, key string) (int, error) {
	keys := []string{cartKey(userID), snapshotKey(userID, key)}
	n, err := restoreScript.Run(ctx, r.client, keys).Int()
	if err != nil {
		return 0, errors.Wrap(err, "restore cart")
	}
	return n, nil
}
