package events

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical/paper-extractor/internal/domain"
)

// redisAddr returns $REDIS_URL when set, otherwise starts a Redis container.
// The test is skipped when no Docker provider is available.
func redisAddr(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func newTestRedisBroker(t *testing.T, addr string) *RedisBroker {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := NewRedisBroker(ctx, RedisConfig{
		Addr:    addr,
		Channel: "paper-extractor:test:" + t.Name(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedisBroker(t *testing.T) {
	addr := redisAddr(t)

	t.Run("round trip", func(t *testing.T) {
		b := newTestRedisBroker(t, addr)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ch, unsubscribe, err := b.Subscribe(ctx)
		require.NoError(t, err)
		defer unsubscribe()

		require.NoError(t, b.Publish(ctx, domain.StreamEvent{
			Type:      domain.EventSessionReset,
			SessionID: "s1",
		}))

		ev := receive(t, ch)
		assert.Equal(t, domain.EventSessionReset, ev.Type)
		assert.Equal(t, "s1", ev.SessionID)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	})

	t.Run("page updates arrive as page records", func(t *testing.T) {
		b := newTestRedisBroker(t, addr)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ch, unsubscribe, err := b.Subscribe(ctx)
		require.NoError(t, err)
		defer unsubscribe()

		rec := domain.NewPageRecord(3, domain.RasterImage{Data: []byte{1}, Width: 200, Height: 300})
		rec.Status = domain.StatusDone
		rec.Content = &domain.PageContent{
			Markdown: "## Methods",
			Figures:  []domain.BoundingBox{{YMin: 100, XMin: 100, YMax: 400, XMax: 500, Label: "Scheme 2"}},
		}
		rec.ChemistryResults[domain.FigureID(0)] = domain.ChemistryEntry{Pending: true}
		rec.ChemistryBusy = true

		require.NoError(t, b.Publish(ctx, domain.StreamEvent{
			Type:       domain.EventPageUpdated,
			SessionID:  "s1",
			PageNumber: 3,
			Payload:    rec,
		}))

		ev := receive(t, ch)
		assert.Equal(t, domain.EventPageUpdated, ev.Type)
		assert.Equal(t, 3, ev.PageNumber)

		got, ok := ev.Payload.(domain.PageRecord)
		require.True(t, ok, "payload is %T", ev.Payload)
		assert.Equal(t, domain.StatusDone, got.Status)
		require.NotNil(t, got.Content)
		assert.Equal(t, rec.Content.Figures, got.Content.Figures)
		assert.True(t, got.ChemistryResults[domain.FigureID(0)].Pending)
		assert.True(t, got.ChemistryBusy)
	})

	t.Run("unsubscribe closes the channel", func(t *testing.T) {
		b := newTestRedisBroker(t, addr)

		ch, unsubscribe, err := b.Subscribe(context.Background())
		require.NoError(t, err)
		unsubscribe()
		unsubscribe()

		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(5 * time.Second):
			t.Fatal("channel not closed after unsubscribe")
		}
	})
}

func TestNewRedisBroker_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisBroker(ctx, RedisConfig{Addr: "127.0.0.1:1"}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}
