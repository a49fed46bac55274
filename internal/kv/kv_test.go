package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStore_Basics(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	v, err := store.Get(ctx, "k")
	if err != nil || v != "v2" {
		t.Fatalf("expected v2,nil; got %q,%v", v, err)
	}
	if err := store.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := store.Remove(ctx, "k"); err != nil {
		t.Fatalf("removing an absent key should be a no-op, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", store.Len())
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemory()
	if err := store.Set(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("canceled set must not write")
	}
}

type mockRedisKVClient struct {
	lastGetKey string
	lastSetKey string
	lastSetVal interface{}
	lastSetTTL time.Duration
	lastDel    []string

	getVal string
	getErr error
	setErr error
	delErr error
}

func (m *mockRedisKVClient) Get(ctx context.Context, key string) *redis.StringCmd {
	m.lastGetKey = key
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	cmd.SetVal(m.getVal)
	return cmd
}

func (m *mockRedisKVClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.lastSetKey = key
	m.lastSetVal = value
	m.lastSetTTL = expiration
	cmd := redis.NewStatusCmd(ctx)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisKVClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.lastDel = keys
	cmd := redis.NewIntCmd(ctx)
	if m.delErr != nil {
		cmd.SetErr(m.delErr)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func TestRedisStore_Basics(t *testing.T) {
	ctx := context.Background()
	mock := &mockRedisKVClient{getVal: `[]`}
	store := &Redis{client: mock, prefix: "ratemymovie:"}

	if err := store.Set(ctx, "users", `[{"id":"1"}]`); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if mock.lastSetKey != "ratemymovie:users" {
		t.Fatalf("unexpected key, got %q", mock.lastSetKey)
	}
	if mock.lastSetTTL != 0 {
		t.Fatalf("expected no expiration, got %v", mock.lastSetTTL)
	}
	if mock.lastSetVal != `[{"id":"1"}]` {
		t.Fatalf("unexpected value, got %v", mock.lastSetVal)
	}

	v, err := store.Get(ctx, "users")
	if err != nil || v != `[]` {
		t.Fatalf("expected [] ,nil; got %q,%v", v, err)
	}
	if mock.lastGetKey != "ratemymovie:users" {
		t.Fatalf("unexpected get key, got %q", mock.lastGetKey)
	}

	if err := store.Remove(ctx, "session"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(mock.lastDel) != 1 || mock.lastDel[0] != "ratemymovie:session" {
		t.Fatalf("unexpected del keys: %+v", mock.lastDel)
	}
}

func TestRedisStore_ErrorPaths(t *testing.T) {
	ctx := context.Background()

	missing := &Redis{client: &mockRedisKVClient{getErr: redis.Nil}}
	if _, err := missing.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected redis.Nil mapped to ErrNotFound, got %v", err)
	}

	down := errors.New("connection refused")
	broken := &Redis{client: &mockRedisKVClient{getErr: down, setErr: down, delErr: down}}
	if _, err := broken.Get(ctx, "k"); !errors.Is(err, ErrUnavailable) || !errors.Is(err, down) {
		t.Fatalf("expected wrapped unavailable error, got %v", err)
	}
	if err := broken.Set(ctx, "k", "v"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected set error, got %v", err)
	}
	if err := broken.Remove(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected remove error, got %v", err)
	}
}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type fakePg struct {
	row      fakeRow
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakePg) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	f.lastArgs = args
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakePg) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArgs = args
	return f.row
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get found", func(t *testing.T) {
		pg := &fakePg{row: fakeRow{value: "blob"}}
		store := &Postgres{db: pg}
		v, err := store.Get(ctx, "users")
		if err != nil || v != "blob" {
			t.Fatalf("expected blob,nil; got %q,%v", v, err)
		}
		if len(pg.lastArgs) != 1 || pg.lastArgs[0] != "users" {
			t.Fatalf("unexpected args: %+v", pg.lastArgs)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		store := &Postgres{db: &fakePg{row: fakeRow{err: pgx.ErrNoRows}}}
		if _, err := store.Get(ctx, "users"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("get failure", func(t *testing.T) {
		store := &Postgres{db: &fakePg{row: fakeRow{err: errors.New("conn reset")}}}
		if _, err := store.Get(ctx, "users"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("set upserts", func(t *testing.T) {
		pg := &fakePg{}
		store := &Postgres{db: pg}
		if err := store.Set(ctx, "users", "[]"); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if len(pg.lastArgs) != 2 || pg.lastArgs[0] != "users" || pg.lastArgs[1] != "[]" {
			t.Fatalf("unexpected args: %+v", pg.lastArgs)
		}
	})

	t.Run("write failures propagate", func(t *testing.T) {
		store := &Postgres{db: &fakePg{execErr: errors.New("read only")}}
		if err := store.Set(ctx, "users", "[]"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable on set, got %v", err)
		}
		if err := store.Remove(ctx, "users"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable on remove, got %v", err)
		}
	})
}

func TestInstrumentedStore_CountsResults(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	store := Instrument(NewMemory(), reg)

	_, _ = store.Get(ctx, "missing")
	_ = store.Set(ctx, "k", "v")
	_, _ = store.Get(ctx, "k")
	_ = store.Remove(ctx, "k")

	if got := testutil.ToFloat64(store.ops.WithLabelValues("get", "not_found")); got != 1 {
		t.Fatalf("expected 1 not_found get, got %v", got)
	}
	if got := testutil.ToFloat64(store.ops.WithLabelValues("get", "ok")); got != 1 {
		t.Fatalf("expected 1 ok get, got %v", got)
	}
	if got := testutil.ToFloat64(store.ops.WithLabelValues("set", "ok")); got != 1 {
		t.Fatalf("expected 1 ok set, got %v", got)
	}
	if got := testutil.CollectAndCount(store.duration); got != 3 {
		t.Fatalf("expected histograms for get/set/remove, got %d", got)
	}
}
