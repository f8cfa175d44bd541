package realtime

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannel = "taskpulse:test"

func startRelay(t *testing.T) (*Relay, *Hub, *redis.Client) {
	t.Helper()

	m := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	hub := newTestHub()
	relay := NewRelay(rc, testChannel, hub)
	relay.now = func() time.Time { return completedAt }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		n, err := rc.PubSubNumSub(context.Background(), testChannel).Result()
		return err == nil && n[testChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	return relay, hub, rc
}

func TestRelay_DeliversThroughLocalHub(t *testing.T) {
	t.Parallel()

	relay, hub, _ := startRelay(t)
	c := attachClient(hub, "c1", 7, 4)
	hub.join(c.id, GroupTasks)

	require.NoError(t, relay.TaskCreated(context.Background(), sampleTask()))
	require.NoError(t, relay.TaskUpdated(context.Background(), sampleTask()))

	assert.Equal(t, EventTaskCreated, nextFrame(t, c).Event)
	assert.Equal(t, EventTaskUpdated, nextFrame(t, c).Event)
}

func TestRelay_CompletionKeepsOriginTimestamp(t *testing.T) {
	t.Parallel()

	relay, hub, _ := startRelay(t)
	hub.now = func() time.Time { return completedAt.Add(time.Hour) }
	c := attachClient(hub, "c1", 7, 4)

	require.NoError(t, relay.TaskCompleted(context.Background(), sampleTask()))

	f := nextFrame(t, c)
	require.Equal(t, EventTaskCompleted, f.Event)
	var got Completion
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.True(t, completedAt.Equal(got.CompletedAt), "got %s", got.CompletedAt)
}

func TestRelay_IgnoresGarbage(t *testing.T) {
	t.Parallel()

	relay, hub, rc := startRelay(t)
	c := attachClient(hub, "c1", 7, 4)
	hub.join(c.id, GroupTasks)

	require.NoError(t, rc.Publish(context.Background(), testChannel, "not json").Err())
	require.NoError(t, rc.Publish(context.Background(), testChannel, `{"event":"task:archived"}`).Err())
	require.NoError(t, relay.TaskCreated(context.Background(), sampleTask()))

	assert.Equal(t, EventTaskCreated, nextFrame(t, c).Event)
	assertQuiet(t, c)
}

func TestRelay_PublishFailsWhenRedisDown(t *testing.T) {
	t.Parallel()

	m := miniredis.NewMiniRedis()
	require.NoError(t, m.Start())
	rc := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })
	m.Close()

	relay := NewRelay(rc, testChannel, newTestHub())
	err := relay.TaskCreated(context.Background(), sampleTask())
	assert.ErrorContains(t, err, "publishing task:created")
}

func TestRelay_PublishGivesUpOnUnresponsiveRedis(t *testing.T) {
	t.Parallel()

	// Accepts connections and never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	rc := redis.NewClient(&redis.Options{
		Addr:                  ln.Addr().String(),
		MaxRetries:            -1,
		ReadTimeout:           time.Minute,
		WriteTimeout:          time.Minute,
		ContextTimeoutEnabled: true,
		Protocol:              2,
		DisableIdentity:       true,
	})
	t.Cleanup(func() { _ = rc.Close() })

	relay := NewRelay(rc, testChannel, newTestHub())
	relay.timeout = 50 * time.Millisecond

	start := time.Now()
	err = relay.TaskUpdated(context.Background(), sampleTask())
	assert.ErrorContains(t, err, "publishing task:updated")
	assert.Less(t, time.Since(start), 5*time.Second)
}
