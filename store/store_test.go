package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lingoleap/webauth/profile"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type rawWriter func(t *testing.T, key string, value []byte)

type backend struct {
	name string
	open func(t *testing.T) (Store, rawWriter)
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			open: func(t *testing.T) (Store, rawWriter) {
				s := NewMemoryStore(nil)
				return s, func(_ *testing.T, key string, value []byte) { s.SetRaw(key, value) }
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) (Store, rawWriter) {
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis start: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() {
					_ = rdb.Close()
					mr.Close()
				})
				return NewRedisStore(rdb, "lms:", nil), func(t *testing.T, key string, value []byte) {
					if err := mr.Set("lms:"+key, string(value)); err != nil {
						t.Fatalf("miniredis set: %v", err)
					}
				}
			},
		},
		{
			name: "badger",
			open: func(t *testing.T) (Store, rawWriter) {
				s, err := OpenBadgerStore(BadgerConfig{InMemory: true}, nil)
				if err != nil {
					t.Fatalf("open badger: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s, func(t *testing.T, key string, value []byte) {
					if err := s.SetRaw(key, value); err != nil {
						t.Fatalf("badger set raw: %v", err)
					}
				}
			},
		},
	}
}

func testProfile(id string) profile.UserProfile {
	points := 10
	return profile.UserProfile{
		ID:       id,
		Email:    id + "@example.com",
		Username: id,
		FullName: "User " + id,
		Role:     profile.RoleStudent,
		Points:   &points,
	}
}

func TestSaveLoadClear(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s, _ := b.open(t)
			ctx := context.Background()

			if _, ok, err := s.Load(ctx); err != nil || ok {
				t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
			}

			want := testProfile("u1")
			if err := s.Save(ctx, "tok1", want); err != nil {
				t.Fatalf("save: %v", err)
			}

			creds, ok, err := s.Load(ctx)
			if err != nil || !ok {
				t.Fatalf("load after save: ok=%v err=%v", ok, err)
			}
			if creds.Token != "tok1" || !reflect.DeepEqual(creds.Profile, want) {
				t.Fatalf("unexpected credentials: %#v", creds)
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("second clear: %v", err)
			}
			if _, ok, err := s.Load(ctx); err != nil || ok {
				t.Fatalf("expected absence after clear, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s, _ := b.open(t)
			ctx := context.Background()

			if err := s.Save(ctx, "", testProfile("u1")); !errors.Is(err, ErrEmptyToken) {
				t.Fatalf("expected ErrEmptyToken, got %v", err)
			}
			if err := s.Save(ctx, "tok", profile.UserProfile{}); !errors.Is(err, profile.ErrInvalidProfile) {
				t.Fatalf("expected ErrInvalidProfile, got %v", err)
			}
			if _, ok, _ := s.Load(ctx); ok {
				t.Fatal("rejected save must not persist anything")
			}
		})
	}
}

func TestCorruptProfileIsPurgedDurably(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s, writeRaw := b.open(t)
			ctx := context.Background()

			if err := s.Save(ctx, "tok1", testProfile("u1")); err != nil {
				t.Fatalf("save: %v", err)
			}
			writeRaw(t, KeyUserInfo, []byte("{broken"))

			if _, ok, err := s.Load(ctx); err != nil || ok {
				t.Fatalf("first load of corrupt data: ok=%v err=%v", ok, err)
			}
			if _, ok, err := s.Load(ctx); err != nil || ok {
				t.Fatalf("second load: ok=%v err=%v", ok, err)
			}

			// the purge removed the token too, so a fresh profile alone is still not a session
			writeRaw(t, KeyUserInfo, mustEncode(t, testProfile("u2")))
			if _, ok, err := s.Load(ctx); err != nil || ok {
				t.Fatalf("profile without token must not load: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestOrphanTokenIsPurged(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s, writeRaw := b.open(t)
			ctx := context.Background()

			writeRaw(t, KeyAccessToken, []byte("tok-orphan"))
			if _, ok, err := s.Load(ctx); err != nil || ok {
				t.Fatalf("orphan token: ok=%v err=%v", ok, err)
			}

			writeRaw(t, KeyUserInfo, mustEncode(t, testProfile("u1")))
			if _, ok, err := s.Load(ctx); err != nil || ok {
				t.Fatalf("token must have been purged with the orphan check: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestConcurrentReadersSeeConsistentPairs(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s, _ := b.open(t)
			ctx := context.Background()

			const writers = 4
			const rounds = 25

			var wg sync.WaitGroup
			errs := make(chan error, writers*rounds*2)

			for w := 0; w < writers; w++ {
				wg.Add(2)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < rounds; i++ {
						id := fmt.Sprintf("u%d-%d", w, i)
						if err := s.Save(ctx, "tok-"+id, testProfile(id)); err != nil {
							errs <- err
						}
					}
				}(w)
				go func() {
					defer wg.Done()
					for i := 0; i < rounds; i++ {
						creds, ok, err := s.Load(ctx)
						if err != nil {
							errs <- err
							continue
						}
						if ok && creds.Token != "tok-"+creds.Profile.ID {
							errs <- fmt.Errorf("torn read: token %q with profile %q", creds.Token, creds.Profile.ID)
						}
					}
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				t.Fatal(err)
			}
		})
	}
}

func TestRedisStoreSurvivesClientRestart(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()
	want := testProfile("u1")

	first := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := NewRedisStore(first, "", nil).Save(ctx, "tok1", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = first.Close()

	if got, _ := mr.Get(KeyAccessToken); got != "tok1" {
		t.Fatalf("expected raw access_token key, got %q", got)
	}

	second := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer second.Close()
	creds, ok, err := NewRedisStore(second, "", nil).Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load after restart: ok=%v err=%v", ok, err)
	}
	if creds.Token != "tok1" || !reflect.DeepEqual(creds.Profile, want) {
		t.Fatalf("round trip mismatch: %#v", creds)
	}
}

func TestRedisStoreReportsUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewRedisStore(rdb, "", nil)
	mr.Close()

	ctx := context.Background()
	if err := s.Save(ctx, "tok", testProfile("u1")); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("save: expected ErrStoreUnavailable, got %v", err)
	}
	if _, _, err := s.Load(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("load: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Clear(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("clear: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	want := testProfile("u1")
	want.Extra = nil

	first, err := OpenBadgerStore(BadgerConfig{Dir: dir, SyncWrites: true}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Save(ctx, "tok1", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenBadgerStore(BadgerConfig{Dir: dir}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	creds, ok, err := second.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load after reopen: ok=%v err=%v", ok, err)
	}
	if creds.Token != "tok1" || !reflect.DeepEqual(creds.Profile, want) {
		t.Fatalf("round trip mismatch: %#v", creds)
	}
}

func TestBadgerStoreRequiresDir(t *testing.T) {
	if _, err := OpenBadgerStore(BadgerConfig{}, nil); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestCorruptPurgeIsLoggedWithoutToken(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewMemoryStore(zap.New(core))
	s.SetRaw(KeyAccessToken, []byte("secret-token-value"))
	s.SetRaw(KeyUserInfo, []byte("nope"))

	if _, ok, err := s.Load(context.Background()); ok || err != nil {
		t.Fatalf("expected soft failure, got ok=%v err=%v", ok, err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected both keys purged, %d left", s.Len())
	}

	entries := logs.FilterMessage("purging corrupt stored session").All()
	if len(entries) != 1 {
		t.Fatalf("expected one purge log entry, got %d", len(entries))
	}
	for _, f := range entries[0].Context {
		if f.String == "secret-token-value" {
			t.Fatal("token value leaked into logs")
		}
	}
}

func mustEncode(t *testing.T, p profile.UserProfile) []byte {
	t.Helper()
	data, err := profile.Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}
