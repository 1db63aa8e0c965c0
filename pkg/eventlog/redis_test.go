package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestSink creates a sink connected to a miniredis instance
func setupTestSink(t *testing.T) (*RedisSink, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	sink, err := NewRedisSink(&redis.Options{Addr: mr.Addr()}, "test-session")
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	return sink, mr
}

func TestNewRedisSink(t *testing.T) {
	t.Run("creates sink", func(t *testing.T) {
		sink, _ := setupTestSink(t)
		assert.Equal(t, "test-session", sink.SessionID())
		assert.NoError(t, sink.Ping(context.Background()))
	})

	t.Run("rejects empty session id", func(t *testing.T) {
		_, err := NewRedisSink(&redis.Options{Addr: "localhost:6379"}, "")
		assert.ErrorContains(t, err, "session id cannot be empty")
	})
}

func TestRedisSink_RecordAndList(t *testing.T) {
	sink, mr := setupTestSink(t)
	ctx := context.Background()

	start := frameEvent()
	start.Type = EventTrialStart
	start.SessionID = "test-session"
	frame := frameEvent()
	frame.SessionID = "test-session"
	end := frameEvent()
	end.SessionID = "test-session"
	end.Type = EventTrialEnd
	end.Response = ResponseMiss

	for _, ev := range []Event{start, frame, end} {
		require.NoError(t, sink.Record(ctx, ev))
	}

	events, err := sink.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventTrialStart, events[0].Type)
	assert.Equal(t, uint64(123456789), events[1].Seed)
	assert.Equal(t, ResponseMiss, events[2].Response)

	assert.True(t, mr.Exists(TrialKey("test-session", 3)))
	assert.False(t, mr.Exists(TrialKey("test-session", 4)))
}

func TestRedisSink_RecordRejectsInvalid(t *testing.T) {
	sink, _ := setupTestSink(t)

	err := sink.Record(context.Background(), Event{Type: EventFrame})
	assert.ErrorContains(t, err, "invalid event")

	events, err := sink.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRedisSink_GetTrial(t *testing.T) {
	sink, _ := setupTestSink(t)
	ctx := context.Background()

	_, err := sink.GetTrial(ctx, 1)
	assert.True(t, IsNotFound(err))

	end := frameEvent()
	end.SessionID = "test-session"
	end.Type = EventTrialEnd
	end.TrialIndex = 1
	end.Response = ResponseHit
	rt := 0.512
	end.ReactionTime = &rt
	require.NoError(t, sink.Record(ctx, end))

	got, err := sink.GetTrial(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ResponseHit, got.Response)
	require.NotNil(t, got.ReactionTime)
	assert.InDelta(t, 0.512, *got.ReactionTime, 1e-9)
}

func TestRedisSink_Sessions(t *testing.T) {
	sink, _ := setupTestSink(t)
	ctx := context.Background()

	older, err := NewRedisSink(&redis.Options{Addr: sink.Client().Options().Addr}, "older")
	require.NoError(t, err)
	defer older.Close()

	require.NoError(t, older.RegisterSession(ctx, time.UnixMilli(1000)))
	require.NoError(t, sink.RegisterSession(ctx, time.UnixMilli(2000)))

	sessions, err := ListSessions(ctx, sink.Client())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "test-session", sessions[0].ID)
	assert.Equal(t, "older", sessions[1].ID)
	assert.Equal(t, int64(1000), sessions[1].StartedAt.UnixMilli())
}

func TestRedisSink_SubscribeEvents(t *testing.T) {
	sink, _ := setupTestSink(t)
	ctx := context.Background()

	sub, err := sink.SubscribeEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	ev := frameEvent()
	ev.SessionID = "test-session"
	require.NoError(t, sink.Record(ctx, ev))

	select {
	case got := <-sub.Events():
		assert.Equal(t, EventFrame, got.Type)
		assert.Equal(t, uint64(123456789), got.Seed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}
