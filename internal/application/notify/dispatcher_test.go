package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"fellowship/internal/adapters/email"
	pushAdapter "fellowship/internal/adapters/push"
	"fellowship/internal/domain/push"
)

type fakeSubs struct {
	mu      sync.Mutex
	subs    map[string]push.Subscription
	deleted []string
	updated []string
}

func newFakeSubs(subs ...push.Subscription) *fakeSubs {
	f := &fakeSubs{subs: map[string]push.Subscription{}}
	for _, s := range subs {
		f.subs[s.ID] = s
	}
	return f
}

func (f *fakeSubs) ListByMembers(_ context.Context, ids []string) ([]push.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []push.Subscription
	for _, s := range f.subs {
		if want[s.MemberID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) Update(_ context.Context, s *push.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.ID] = *s
	f.updated = append(f.updated, s.ID)
	return nil
}

func (f *fakeSubs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePush struct {
	mu    sync.Mutex
	gone  map[string]bool
	block bool
	sent  []string
}

func (f *fakePush) Send(ctx context.Context, sub push.Subscription, _ push.Notification) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[sub.ID] {
		return pushAdapter.ErrGone
	}
	f.sent = append(f.sent, sub.ID)
	return nil
}

type fakeMetrics struct {
	mu      sync.Mutex
	sent    map[string]int
	failed  map[string]int
	dropped int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{sent: map[string]int{}, failed: map[string]int{}}
}

func (m *fakeMetrics) NotificationSent(channel string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.sent[channel]++
	} else {
		m.failed[channel]++
	}
}

func (m *fakeMetrics) NotificationDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestDispatcher_Delivers(t *testing.T) {
	defer goleak.VerifyNone(t)

	subs := newFakeSubs(
		push.Subscription{ID: "s-1", MemberID: "m-1"},
		push.Subscription{ID: "s-2", MemberID: "m-1"},
		push.Subscription{ID: "s-3", MemberID: "m-2"},
		push.Subscription{ID: "s-4", MemberID: "m-3"},
	)
	sender := &fakePush{gone: map[string]bool{"s-2": true}}
	mail := email.NewNoopSender(zap.NewNop().Sugar())
	metrics := newFakeMetrics()

	d := NewDispatcher(Config{Workers: 2, QueueSize: 8}, Deps{
		Subscriptions: subs,
		Push:          sender,
		Email:         mail,
		Metrics:       metrics,
		Log:           zap.NewNop().Sugar(),
		Now:           func() time.Time { return now },
	})
	d.Start()

	ok := d.Enqueue(Job{
		MemberIDs:    []string{"m-1", "m-2"},
		Notification: push.Notification{Kind: push.KindMessage, Title: "New message"},
		Email:        &email.SendRequest{To: []string{"m-1@example.com"}, Subject: "New message"},
	})
	require.True(t, ok)
	require.NoError(t, d.Stop(context.Background()))

	assert.ElementsMatch(t, []string{"s-1", "s-3"}, sender.sent)
	assert.Equal(t, []string{"s-2"}, subs.deleted, "gone subscriptions are removed")
	assert.ElementsMatch(t, []string{"s-1", "s-3"}, subs.updated)
	assert.Equal(t, now, *subs.subs["s-1"].LastUsedAt)
	assert.Nil(t, subs.subs["s-4"].LastUsedAt)

	assert.Len(t, mail.Sent(), 1)
	assert.Equal(t, 2, metrics.sent[ChannelPush])
	assert.Equal(t, 1, metrics.failed[ChannelPush])
	assert.Equal(t, 1, metrics.sent[ChannelEmail])

	assert.False(t, d.Enqueue(Job{}), "stopped dispatcher refuses jobs")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	metrics := newFakeMetrics()
	d := NewDispatcher(Config{Workers: 1, QueueSize: 1}, Deps{Metrics: metrics, Log: zap.NewNop().Sugar()})

	// not started, so nothing drains the queue
	assert.True(t, d.Enqueue(Job{}))
	assert.False(t, d.Enqueue(Job{}))
	assert.Equal(t, 1, metrics.dropped)

	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()), "second stop is a no-op")
}

func TestDispatcher_StopDeadlineCancelsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Config{Workers: 1, QueueSize: 4, JobTimeout: time.Minute}, Deps{
		Subscriptions: newFakeSubs(push.Subscription{ID: "s-1", MemberID: "m-1"}),
		Push:          &fakePush{block: true},
		Log:           zap.NewNop().Sugar(),
	})
	d.Start()
	require.True(t, d.Enqueue(Job{MemberIDs: []string{"m-1"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
