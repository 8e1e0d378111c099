package redis

import (
	"context"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/redis/go-redis/v9"
)

const accessPrefix = "denylist:access:"

// AccessDenylist keeps revoked access token ids until the token would have
// expired anyway.
type AccessDenylist struct {
	client redis.UniversalClient
}

var _ repo.AccessDenylist = (*AccessDenylist)(nil)

func NewAccessDenylist(client redis.UniversalClient) *AccessDenylist {
	return &AccessDenylist{client: client}
}

func (r *AccessDenylist) RevokeAccess(ctx context.Context, jti string, exp time.Time) error {
	return r.client.Set(ctx, accessPrefix+jti, 1, safeTTL(exp)).Err()
}

func (r *AccessDenylist) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, accessPrefix+jti).Result()
	if err != nil {
		// unknown state counts as revoked
		return true, err
	}
	return n > 0, nil
}

func safeTTL(exp time.Time) time.Duration {
	ttl := time.Until(exp)
	if ttl <= 0 {
		// short floor so the key still disappears
		return time.Minute
	}
	return ttl
}
