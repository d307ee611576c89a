package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/lingoleap/webauth/profile"
	"go.uber.org/zap"
)

const badgerConflictRetries = 8

// BadgerConfig configures the on-disk store.
type BadgerConfig struct {
	Dir string
	// SyncWrites fsyncs every commit. Tokens change rarely, so it defaults to on.
	SyncWrites bool
	// InMemory keeps the database off disk (tests).
	InMemory bool
	// EncryptionKey enables Badger's at-rest encryption (16, 24 or 32 bytes).
	EncryptionKey []byte
}

// BadgerStore persists the pair in a local Badger database. It is the durable
// counterpart of browser storage for desktop and CLI clients.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadgerStore opens (or creates) the database at cfg.Dir.
func OpenBadgerStore(cfg BadgerConfig, logger *zap.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, errors.New("badger store: dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithMemTableSize(8 << 20)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(&badgerLogger{logger: logger.Sugar()}).
		WithNumVersionsToKeep(1)
	if len(cfg.EncryptionKey) > 0 {
		opts = opts.WithEncryptionKey(cfg.EncryptionKey).WithIndexCacheSize(1 << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", ErrStoreUnavailable, err)
	}

	logger.Debug("badger token store opened", zap.String("dir", cfg.Dir), zap.Bool("in_memory", cfg.InMemory))
	return &BadgerStore{db: db, logger: logger}, nil
}

// Save writes both keys in a single transaction.
func (s *BadgerStore) Save(_ context.Context, token string, p profile.UserProfile) error {
	data, err := encodeRecord(token, p)
	if err != nil {
		return err
	}

	err = s.update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(KeyAccessToken), []byte(token)); err != nil {
			return err
		}
		return txn.Set([]byte(KeyUserInfo), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load reads in a read-only transaction. A corrupt pair is purged in a second,
// read-write transaction that re-checks the pair so a concurrent Save is never lost.
func (s *BadgerStore) Load(_ context.Context) (Credentials, bool, error) {
	var read pairRead
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		read, err = readPair(txn)
		return err
	})
	if err != nil {
		return Credentials{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch read.outcome {
	case outcomeFound:
		return read.creds, true, nil
	case outcomeAbsent:
		return Credentials{}, false, nil
	}

	s.logger.Warn("purging corrupt stored session", zap.String("backend", "badger"), zap.NamedError("reason", read.reason))

	err = s.update(func(txn *badger.Txn) error {
		var err error
		read, err = readPair(txn)
		if err != nil || read.outcome != outcomeCorrupt {
			return err
		}
		if err := txn.Delete([]byte(KeyAccessToken)); err != nil {
			return err
		}
		return txn.Delete([]byte(KeyUserInfo))
	})
	if err != nil {
		return Credentials{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if read.outcome == outcomeFound {
		return read.creds, true, nil
	}
	return Credentials{}, false, nil
}

type pairRead struct {
	creds   Credentials
	outcome loadOutcome
	reason  error
}

func readPair(txn *badger.Txn) (pairRead, error) {
	token, hasToken, err := getValue(txn, KeyAccessToken)
	if err != nil {
		return pairRead{}, err
	}
	raw, hasProfile, err := getValue(txn, KeyUserInfo)
	if err != nil {
		return pairRead{}, err
	}
	creds, outcome, reason := resolve(string(token), hasToken, raw, hasProfile)
	return pairRead{creds: creds, outcome: outcome, reason: reason}, nil
}

func (s *BadgerStore) Clear(_ context.Context) error {
	err := s.update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(KeyAccessToken)); err != nil {
			return err
		}
		return txn.Delete([]byte(KeyUserInfo))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}

// SetRaw writes a raw value for key, bypassing encoding.
func (s *BadgerStore) SetRaw(key string, value []byte) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < badgerConflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getValue(txn *badger.Txn, key string) ([]byte, bool, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// badgerLogger routes Badger's internal logging through zap.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}
