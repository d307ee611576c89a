package store

import (
	"context"
	"errors"

	"github.com/lingoleap/webauth/profile"
)

const (
	// KeyAccessToken holds the raw bearer token.
	KeyAccessToken = "access_token"
	// KeyUserInfo holds the JSON-serialized profile.
	KeyUserInfo = "user_info"
)

var (
	// ErrStoreUnavailable wraps backend failures (network, disk, closed handle).
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrEmptyToken is returned by Save when the token is blank.
	ErrEmptyToken = errors.New("token store: empty token")
)

// Credentials is what a successful Load returns.
type Credentials struct {
	Token   string
	Profile profile.UserProfile
}

// Store persists the token and profile pair.
type Store interface {
	// Save writes both values atomically.
	Save(ctx context.Context, token string, p profile.UserProfile) error
	// Load returns the stored pair, or ok=false when nothing usable is stored.
	Load(ctx context.Context) (creds Credentials, ok bool, err error)
	// Clear removes both values. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

type loadOutcome int

const (
	outcomeAbsent loadOutcome = iota
	outcomeFound
	outcomeCorrupt
)

// resolve applies the pairing and parse rules shared by every backend.
func resolve(token string, hasToken bool, raw []byte, hasProfile bool) (Credentials, loadOutcome, error) {
	if !hasToken && !hasProfile {
		return Credentials{}, outcomeAbsent, nil
	}
	if !hasToken || !hasProfile || token == "" {
		return Credentials{}, outcomeCorrupt, errors.New("token and profile not paired")
	}

	p, err := profile.Decode(raw)
	if err != nil {
		return Credentials{}, outcomeCorrupt, err
	}
	return Credentials{Token: token, Profile: p}, outcomeFound, nil
}

func encodeRecord(token string, p profile.UserProfile) ([]byte, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	return profile.Encode(p)
}
