package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Keys persisted per session.
const (
	KeyAuthToken         = "auth_token"
	KeyOrgID             = "org_id"
	KeyCurrentLocationID = "current_location_id"
	KeyUser              = "user"
)

var ErrEmptySessionID = errors.New("session id is empty")

// Store persists small string values per session id.
// Implementations must make Delete of a missing key a no-op.
type Store interface {
	Get(ctx context.Context, sid, key string) (string, bool, error)
	Set(ctx context.Context, sid, key, value string) error
	Delete(ctx context.Context, sid string, keys ...string) error
	Destroy(ctx context.Context, sid string) error
}

// storageKey hashes the raw id so the cookie value never appears in storage.
func storageKey(sid string) string {
	sum := sha256.Sum256([]byte(sid))
	return hex.EncodeToString(sum[:])
}
