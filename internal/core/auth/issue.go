package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// IssuedKey is a freshly created API key. Key is shown once; only its HMAC
// is stored.
type IssuedKey struct {
	ID   string
	Name string
	Key  string
}

// IssueAPIKey creates a key signed with the given secret and stores its hash.
func IssueAPIKey(ctx context.Context, q Queries, secretID string, secret []byte, name string) (IssuedKey, error) {
	if name == "" {
		return IssuedKey{}, fmt.Errorf("api key name cannot be empty")
	}
	randomData, err := newRandomData()
	if err != nil {
		return IssuedKey{}, err
	}

	key := FormatAPIKey(secretID, randomData)
	if _, _, err := ParseAPIKey(key); err != nil {
		return IssuedKey{}, fmt.Errorf("secret id %q: %w", secretID, err)
	}

	id := uuid.Must(uuid.NewV7()).String()
	if _, err := q.ExecContext(ctx, "insert-api-key", id, name, ComputeHMAC(secret, key), db.FormatTime(time.Now())); err != nil {
		return IssuedKey{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return IssuedKey{ID: id, Name: name, Key: key}, nil
}

// RevokeAPIKey marks a key revoked; later requests get PermissionDenied.
func RevokeAPIKey(ctx context.Context, q Queries, id string) error {
	res, err := q.ExecContext(ctx, "revoke-api-key", db.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrAPIKeyNotFound, id)
	}
	return nil
}
