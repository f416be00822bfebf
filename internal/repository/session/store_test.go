package session

import (
	"context"
	"encoding/json"
	"fmt"
	"image-board-backend/internal/domain"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	_, err := s.Get(ctx, "sid-1")
	assert.ErrorIs(t, err, domain.ErrSessionAbsent)

	require.NoError(t, s.Save(ctx, "sid-1", &domain.Session{AccessToken: "at", User: domain.AuthUser{ID: "u1"}}))

	got, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "at", got.AccessToken)
	assert.Equal(t, "u1", got.User.ID)

	// Returned value is a copy
	got.AccessToken = "changed"
	again, _ := s.Get(ctx, "sid-1")
	assert.Equal(t, "at", again.AccessToken)

	t.Run("expires after ttl", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		_, err := s.Get(ctx, "sid-1")
		assert.ErrorIs(t, err, domain.ErrSessionAbsent)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "sid-2", &domain.Session{AccessToken: "x"}))
		require.NoError(t, s.Delete(ctx, "sid-2"))
		require.NoError(t, s.Delete(ctx, "sid-2"))
		_, err := s.Get(ctx, "sid-2")
		assert.ErrorIs(t, err, domain.ErrSessionAbsent)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		assert.Error(t, s.Save(ctx, "", &domain.Session{}))
		assert.Error(t, s.Save(ctx, "k", nil))
	})
}

func TestRedisStoreEmptyKey(t *testing.T) {
	// No server needed: empty keys never reach Redis.
	s := NewRedisStore(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}), time.Hour)
	_, err := s.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrSessionAbsent)
	assert.NoError(t, s.Delete(context.Background(), ""))
	assert.Error(t, s.Save(context.Background(), "", &domain.Session{}))
}

func TestMemoryStorePurge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	s.lastSweep = now

	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Save(ctx, fmt.Sprintf("abandoned-%d", i), &domain.Session{AccessToken: "x"}))
	}
	assert.Equal(t, 1000, s.Len())

	// The next save after a full TTL sweeps the abandoned sessions
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Save(ctx, "fresh", &domain.Session{AccessToken: "y"}))
	assert.Equal(t, 1, s.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Purge())
	assert.Zero(t, s.Len())
}

func TestMemoryStoreExpiredReadKeepsNewSave(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, "sid", &domain.Session{AccessToken: "old"}))
	now = now.Add(2 * time.Minute)

	// A refresh lands between the expiry check and the delete
	calls := 0
	s.now = func() time.Time {
		calls++
		if calls == 1 {
			require.NoError(t, s.Save(ctx, "sid", &domain.Session{AccessToken: "new"}))
		}
		return now
	}
	_, err := s.Get(ctx, "sid")
	assert.ErrorIs(t, err, domain.ErrSessionAbsent)

	s.now = func() time.Time { return now }
	got, err := s.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}

type recordingHook struct {
	cmds  [][]interface{}
	reply string
}

func (h *recordingHook) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (h *recordingHook) ProcessHook(_ goredis.ProcessHook) goredis.ProcessHook {
	return func(_ context.Context, cmd goredis.Cmder) error {
		h.cmds = append(h.cmds, cmd.Args())
		if sc, ok := cmd.(*goredis.StringCmd); ok {
			sc.SetVal(h.reply)
		}
		return nil
	}
}

func (h *recordingHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestRedisStoreGetSlidesTTL(t *testing.T) {
	raw, err := json.Marshal(domain.Session{AccessToken: "at"})
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	hook := &recordingHook{reply: string(raw)}
	client.AddHook(hook)

	s := NewRedisStore(client, time.Hour)
	got, err := s.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "at", got.AccessToken)

	require.Len(t, hook.cmds, 1)
	args := hook.cmds[0]
	assert.Equal(t, "getex", args[0])
	assert.Equal(t, "session:sid-1", args[1])
	assert.Equal(t, "ex", args[2])
}
