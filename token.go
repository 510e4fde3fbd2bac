package accountsvc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// TokenRepository is the registry of live auth tokens. A user holds at
// most one token at a time.
type TokenRepository interface {
	// IssueOrReuse returns the user's existing token if one exists,
	// otherwise persists candidate and returns it. Implementations must
	// be atomic under concurrent calls for the same user.
	IssueOrReuse(ctx context.Context, userID ID, candidate string) (string, error)

	// Resolve looks up the owner of a token. Tokens never expire; they
	// are only removed by Revoke.
	Resolve(ctx context.Context, token string) (ID, error)

	// Revoke deletes the user's token. Returns ErrTokenNotFound when
	// the user holds none.
	Revoke(ctx context.Context, userID ID) error
}

var ErrTokenNotFound = errors.New("invalid token or already logged out")

// newTokenString returns 20 random bytes hex-encoded, a 40 character
// opaque key.
func newTokenString() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", errors.New("error generating token")
	}
	return hex.EncodeToString(b), nil
}
