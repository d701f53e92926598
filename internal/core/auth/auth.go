// Package auth guards the probe API with HMAC-signed API keys.
//
// A key names the secret that signed it, so verifying one is a map lookup,
// one HMAC and one indexed read of api_keys by digest.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/dispatchkeeper/internal/core/db"
)

// MetadataKey is the gRPC metadata header carrying the API key.
const MetadataKey = "x-api-key"

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// lastUsedInterval throttles last_used_at writes for busy callers.
const lastUsedInterval = time.Minute

type callerKey struct{}

// Queries is the subset of *db.Queries the package needs.
type Queries interface {
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

type keyRow struct {
	ID         string         `db:"api_key_id"`
	Name       string         `db:"name"`
	RevokedAt  sql.NullString `db:"revoked_at"`
	LastUsedAt sql.NullString `db:"last_used_at"`
}

// Authenticator verifies API keys against the configured secrets and the
// api_keys table.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{secrets: secrets, queries: queries, now: time.Now}
}

// Authenticate returns the name the key was issued under.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var row keyRow
	switch err := a.queries.GetContext(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey)); {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrInvalidKey
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if row.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	if a.stale(row.LastUsedAt) {
		// best effort; a failed touch must not fail the call
		_, _ = a.queries.ExecContext(ctx, "update-last-used", db.FormatTime(a.now()), row.ID)
	}
	return row.Name, nil
}

func (a *Authenticator) stale(lastUsed sql.NullString) bool {
	if !lastUsed.Valid {
		return true
	}
	t, err := db.ParseTime(lastUsed.String)
	return err != nil || a.now().Sub(t) > lastUsedInterval
}

// UnaryInterceptor authenticates every call except health checks and stores
// the caller name in the handler context.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if info.FullMethod == healthCheckMethod {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		keys := md.Get(MetadataKey)
		if len(keys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		caller, err := a.Authenticate(ctx, keys[0])
		if err != nil {
			return nil, status.Error(statusCode(err), err.Error())
		}
		return handler(context.WithValue(ctx, callerKey{}, caller), req)
	}
}

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return codes.PermissionDenied
	case errors.Is(err, ErrDatabase):
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}

// CallerFromContext returns the authenticated key name, or "" outside an
// authenticated call.
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
