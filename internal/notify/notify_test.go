package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/queue/streams"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithTimeoutCutsOffSlowNotifier(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := Func(func(ctx context.Context, _, _ string) error {
		<-release
		return nil
	})

	start := time.Now()
	err := WithTimeout(slow, 20*time.Millisecond).Notify(context.Background(), "supervisor", "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, WithTimeout(rec, time.Second).Notify(context.Background(), "+15550001", "hello"))
	assert.Equal(t, []Sent{{Target: "+15550001", Message: "hello"}}, rec.Sent())

	assert.Equal(t, Notifier(rec), WithTimeout(rec, 0))
}

func TestFanoutJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("smtp down")
	err := Fanout{Failing{Err: boom}, rec}.Notify(context.Background(), "t", "m")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Sent(), 1, "later notifiers still run")

	assert.NoError(t, Fanout{Noop{}, rec}.Notify(context.Background(), "t", "m"))
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLog(zap.New(core)).Notify(context.Background(), "supervisor", "New Help Request"))
	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "supervisor", entries[0].ContextMap()["target"])
}

type fakeXAdd struct{ args []*redis.XAddArgs }

func (f *fakeXAdd) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", nil)
}

func TestStreamNotifierPublishes(t *testing.T) {
	fake := &fakeXAdd{}
	n := NewStream(streams.NewPublisher(fake), "frontdesk:notifications", 500)
	require.NoError(t, n.Notify(context.Background(), "+15550001", "Answer: $25 minimum"))

	require.Len(t, fake.args, 1)
	values := fake.args[0].Values.(map[string]interface{})
	env, err := streams.UnmarshalEnvelope(values["envelope"].([]byte))
	require.NoError(t, err)
	assert.Equal(t, streams.EventNotification, env.EventType)
	assert.JSONEq(t, `{"target":"+15550001","message":"Answer: $25 minimum"}`, string(env.Data))
}

func TestNewSelectsDriver(t *testing.T) {
	n, err := New(config.NotifyConfig{Driver: config.NotifyDriverNoop}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Notifier(Noop{}), n)

	n, err = New(config.NotifyConfig{Driver: config.NotifyDriverLog, Timeout: time.Second}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, bounded{}, n)

	_, err = New(config.NotifyConfig{Driver: config.NotifyDriverRedis}, nil, nil)
	assert.Error(t, err)

	_, err = New(config.NotifyConfig{Driver: "pager"}, nil, nil)
	assert.Error(t, err)
}

func TestMessages(t *testing.T) {
	alert := SupervisorAlert(Alert{RequestID: "r1", Question: "Do you offer gift cards?", CallerContact: "+15550001"})
	assert.Contains(t, alert, "New Help Request")
	assert.Contains(t, alert, "Question: Do you offer gift cards?")
	assert.Contains(t, alert, "Caller: +15550001")
	assert.Contains(t, alert, "supervisor dashboard")
	assert.NotContains(t, alert, "Context:")

	alert = SupervisorAlert(Alert{RequestID: "r1", Question: "q", Context: "asked about prices", DashboardURL: "http://dash"})
	assert.Contains(t, alert, "Context: asked about prices")
	assert.Contains(t, alert, "http://dash")

	follow := CallerFollowUp(FollowUp{Business: "Luxe Hair Salon", Question: "Do you offer gift cards?", Answer: "$25 minimum"})
	assert.Contains(t, follow, "Here's the answer to your question")
	assert.Contains(t, follow, "Answer: $25 minimum")
	assert.Contains(t, follow, "Luxe Hair Salon")
}
