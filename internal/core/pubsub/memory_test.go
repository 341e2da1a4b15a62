package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"docs.trial", "docs.trial", true},
		{"docs.trial", "docs.publication", false},
		{"docs.*", "docs.trial", true},
		{"docs.*", "docs.trial.upserted", false},
		{"docs.>", "docs.trial", true},
		{"docs.>", "docs.trial.upserted", true},
		{"docs.>", "docs", false},
		{"*.trial", "docs.trial", true},
		{"docs.trial", "docs", false},
		{"", "docs.trial", false},
		{"docs.trial", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject))
		})
	}
}

func collector() (Handler, func() []string) {
	var mu sync.Mutex
	var got []string
	h := func(subject string, data []byte) {
		mu.Lock()
		got = append(got, subject+":"+string(data))
		mu.Unlock()
	}
	return h, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus("cs")
	defer bus.Close()

	h, got := collector()
	unsub, err := bus.Subscribe("docs.>", h)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, bus.Publish(context.Background(), "docs.trial", []byte("a")))
	require.NoError(t, bus.Publish(context.Background(), "docs.publication", []byte("b")))
	require.NoError(t, bus.Publish(context.Background(), "schema.rebuilt", []byte("c")))

	assert.Eventually(t, func() bool { return len(got()) == 2 }, time.Second, time.Millisecond)
	assert.ElementsMatch(t, []string{"cs.docs.trial:a", "cs.docs.publication:b"}, got())
}

func TestMemoryBus_MultipleSubscribersSamePattern(t *testing.T) {
	bus := NewMemoryBus("")
	defer bus.Close()

	h1, got1 := collector()
	h2, got2 := collector()
	_, err := bus.Subscribe("docs.*", h1)
	require.NoError(t, err)
	_, err = bus.Subscribe("docs.*", h2)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "docs.trial", []byte("x")))

	assert.Eventually(t, func() bool {
		return len(got1()) == 1 && len(got2()) == 1
	}, time.Second, time.Millisecond)
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus("")
	defer bus.Close()

	h, got := collector()
	unsub, err := bus.Subscribe("docs.*", h)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "docs.trial", nil))
	assert.Eventually(t, func() bool { return len(got()) == 1 }, time.Second, time.Millisecond)

	unsub()
	unsub() // idempotent

	require.NoError(t, bus.Publish(context.Background(), "docs.trial", nil))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, got(), 1)
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus("")
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), "docs.trial", nil)
	assert.ErrorIs(t, err, ErrBusClosed)

	_, err = bus.Subscribe("docs.*", func(string, []byte) {})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, EngineMemory, cfg.Engine)
	assert.NoError(t, cfg.Validate())

	cfg = Config{Engine: EngineNATS}
	assert.Error(t, cfg.Validate())
	cfg.URL = "nats://localhost:4222"
	assert.NoError(t, cfg.Validate())

	cfg = Config{Engine: "kafka"}
	assert.Error(t, cfg.Validate())
}
