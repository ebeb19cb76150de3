package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ridewatch/internal/logging"
	"github.com/example/ridewatch/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestProducerKeysByRideID(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducer(w)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(),
		Event{Kind: "inserted", Ride: models.RideRecord{ID: 42, Status: models.StatusSearching}, ObservedAt: at},
		Event{Kind: "updated", Ride: models.RideRecord{ID: 42, Status: models.StatusMatched}, ObservedAt: at},
	))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "42", string(w.msgs[0].Key))

	e, err := DecodeEvent(w.msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, "updated", e.Kind)
	assert.Equal(t, models.StatusMatched, e.Ride.Status)

	require.NoError(t, p.Publish(context.Background()))
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerPropagatesWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	err := NewProducer(w).Publish(context.Background(), Event{Ride: models.RideRecord{ID: 1}})
	assert.EqualError(t, err, "broker down")
}

func TestDecodeEventRejectsBadInput(t *testing.T) {
	_, err := DecodeEvent([]byte("{"))
	assert.ErrorIs(t, err, models.ErrProtocolFailure)
	_, err = DecodeEvent([]byte(`{"kind":"updated","ride":{"status":"MATCHED"}}`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

// fakeReader serves msgs once, then blocks until the context is done.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs int
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErrs > 0 {
		f.fetchErrs--
		f.mu.Unlock()
		return kafka.Message{}, errors.New("leader not available")
	}
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64{}, f.committed...)
}

func eventMessage(t *testing.T, offset, rideID int64) kafka.Message {
	t.Helper()
	b, err := json.Marshal(Event{Kind: "updated", Ride: models.RideRecord{ID: rideID, Status: models.StatusAccepted}})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestConsumerRetriesSinkAndCommits(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		eventMessage(t, 1, 10),
		{Offset: 2, Value: []byte("garbage")},
		eventMessage(t, 3, 11),
	}}
	var mu sync.Mutex
	calls := map[int64]int{}
	sink := func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls[e.Ride.ID]++
		if e.Ride.ID == 10 && calls[10] < 2 {
			return errors.New("db busy")
		}
		if e.Ride.ID == 11 {
			return errors.New("always fails")
		}
		return nil
	}
	c := NewConsumer(r, sink, ConsumerOptions{Attempts: 3, RetryDelay: time.Millisecond}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, r.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls[10])
	assert.Equal(t, 3, calls[11])
}

func TestConsumerSurvivesReadErrors(t *testing.T) {
	r := &fakeReader{fetchErrs: 1, msgs: []kafka.Message{eventMessage(t, 7, 1)}}
	got := make(chan int64, 1)
	c := NewConsumer(r, func(_ context.Context, e Event) error { got <- e.Ride.ID; return nil },
		ConsumerOptions{MaxReadDelay: 10 * time.Millisecond}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case id := <-got:
		assert.Equal(t, int64(1), id)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered after read error")
	}
}
