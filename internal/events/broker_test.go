package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-extractor/internal/domain"
)

func receive(t *testing.T, ch <-chan domain.StreamEvent) domain.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.StreamEvent{}
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(4, nil)
	defer b.Close()

	ctx := context.Background()
	a, cancelA, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer cancelA()
	c, cancelC, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer cancelC()

	require.NoError(t, b.Publish(ctx, domain.StreamEvent{Type: domain.EventPageRendered, PageNumber: 2}))

	for _, ch := range []<-chan domain.StreamEvent{a, c} {
		ev := receive(t, ch)
		assert.Equal(t, domain.EventPageRendered, ev.Type)
		assert.Equal(t, 2, ev.PageNumber)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBroker_DropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(1, nil)
	defer b.Close()

	ch, cancel, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, domain.StreamEvent{Type: domain.EventPageUpdated, PageNumber: 1}))
	require.NoError(t, b.Publish(ctx, domain.StreamEvent{Type: domain.EventPageUpdated, PageNumber: 2}))

	assert.Equal(t, 1, receive(t, ch).PageNumber)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(1, nil)
	defer b.Close()

	ch, cancel, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())
}

func TestBroker_ContextEndsSubscription(t *testing.T) {
	b := NewBroker(1, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := b.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestBroker_Closed(t *testing.T) {
	b := NewBroker(1, nil)
	ch, _, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-ch
	assert.False(t, ok)

	assert.Error(t, b.Publish(context.Background(), domain.StreamEvent{}))
	_, _, err = b.Subscribe(context.Background())
	assert.Error(t, err)
}

func TestStamp_KeepsExisting(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := Stamp(domain.StreamEvent{ID: "fixed", Timestamp: ts})
	assert.Equal(t, "fixed", ev.ID)
	assert.Equal(t, ts, ev.Timestamp)
}
