package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, _ string, ev Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func (r *recorder) Close() error { return nil }

func TestNew_NopWithoutBrokers(t *testing.T) {
	t.Parallel()

	_, ok := New(nil, "machmate.client_events").(Nop)
	assert.True(t, ok)

	p, ok := New([]string{"localhost:9092"}, "machmate.client_events").(*Producer)
	assert.True(t, ok)
	assert.NoError(t, p.Close())
}

func TestEmit_StampsAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	r := &recorder{err: errors.New("broker down")}
	Emit(context.Background(), r, Event{Type: Login, SessionID: "s"})

	assert.Len(t, r.got, 1)
	assert.False(t, r.got[0].At.IsZero())
	Emit(context.Background(), nil, Event{Type: Logout})
}

func TestEmit_IgnoresCancelledRequest(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seenErr error
	r := &ctxRecorder{fn: func(ctx context.Context) { seenErr = ctx.Err() }}
	Emit(ctx, r, Event{Type: ProjectCreated})
	assert.NoError(t, seenErr)
}

type ctxRecorder struct{ fn func(context.Context) }

func (r *ctxRecorder) Publish(ctx context.Context, _ string, _ Event) error {
	r.fn(ctx)
	return nil
}

func (r *ctxRecorder) Close() error { return nil }
