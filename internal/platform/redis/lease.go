package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leasePrefix = "stagegate:lease:"

// releaseScript deletes the key only while it still holds our token, so a
// lease that expired and was taken by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Leaser hands out short-lived exclusive leases so only one replica runs a
// given sweep at a time.
type Leaser struct {
	client redis.UniversalClient
	owner  string
}

func NewLeaser(client redis.UniversalClient) *Leaser {
	return &Leaser{client: client, owner: uuid.NewString()}
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// TryAcquire takes the named lease for ttl. ok is false when another holder
// has it; that is not an error.
func (l *Leaser) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	key := leasePrefix + name
	token := l.owner + ":" + uuid.NewString()
	err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return &Lease{client: l.client, key: key, token: token}, true, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
