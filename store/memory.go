package store

import (
	"context"
	"sync"

	"github.com/lingoleap/webauth/profile"
	"go.uber.org/zap"
)

// MemoryStore keeps the pair in process memory. It does not survive a restart and is
// meant for tests and short-lived tools.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	logger *zap.Logger
}

// NewMemoryStore returns an empty store. A nil logger is replaced by a no-op logger.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		values: make(map[string][]byte, 2),
		logger: logger,
	}
}

func (s *MemoryStore) Save(_ context.Context, token string, p profile.UserProfile) error {
	data, err := encodeRecord(token, p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[KeyAccessToken] = []byte(token)
	s.values[KeyUserInfo] = data
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, hasToken := s.values[KeyAccessToken]
	raw, hasProfile := s.values[KeyUserInfo]

	creds, outcome, reason := resolve(string(token), hasToken, raw, hasProfile)
	switch outcome {
	case outcomeFound:
		return creds, true, nil
	case outcomeCorrupt:
		s.logger.Warn("purging corrupt stored session", zap.String("backend", "memory"), zap.NamedError("reason", reason))
		delete(s.values, KeyAccessToken)
		delete(s.values, KeyUserInfo)
	}
	return Credentials{}, false, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, KeyAccessToken)
	delete(s.values, KeyUserInfo)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// SetRaw writes a raw value for key, bypassing encoding. Tools use it to inspect
// recovery behaviour.
func (s *MemoryStore) SetRaw(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
}

// Len reports how many of the two keys are present.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
