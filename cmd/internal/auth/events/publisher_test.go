package events

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"kitchenhero/cmd/internal/auth/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestWatermillPublisher_Publish(t *testing.T) {
	ps := newPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := ps.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	pub, err := NewWatermillPublisher(ps, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, pub.Topic())

	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in := session.Event{Type: session.EventLogin, UserID: "01J0000000000000000000USER", At: at}
	require.NoError(t, pub.Publish(ctx, in))

	msg := receive(t, msgs)
	assert.NotEmpty(t, msg.UUID)
	assert.Equal(t, "session.login", msg.Metadata.Get(MetaEventType))
	assert.Equal(t, in.UserID, msg.Metadata.Get(MetaUserID))

	out, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.UserID, out.UserID)
	assert.True(t, in.At.Equal(out.At))
}

func TestWatermillPublisher_NoUserIDMetadataWhenAnonymous(t *testing.T) {
	ps := newPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := ps.Subscribe(ctx, "custom.topic")
	require.NoError(t, err)

	pub, err := NewWatermillPublisher(ps, " custom.topic ")
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, session.Event{Type: session.EventLoginFailed, Email: "x@example.com", Reason: "unknown_email"}))

	msg := receive(t, msgs)
	assert.Empty(t, msg.Metadata.Get(MetaUserID))
	out, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", out.Email)
	assert.Equal(t, "unknown_email", out.Reason)
}

func TestWatermillPublisher_ClosedPublisher(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	pub, err := NewWatermillPublisher(ps, "")
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	err = pub.Publish(context.Background(), session.Event{Type: session.EventRevoked})
	assert.Error(t, err)
}

func TestNewWatermillPublisher_Nil(t *testing.T) {
	_, err := NewWatermillPublisher(nil, "")
	assert.Error(t, err)

	_, err = NewRedisStreamPublisher(nil, "", nil)
	assert.Error(t, err)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(message.NewMessage("id", []byte("{")))
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := pub.Publish(context.Background(), session.Event{
		Type:   session.EventRefreshRejected,
		Reason: "expired",
		Email:  "never-logged@example.com",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"auth.event"`)
	assert.Contains(t, out, `"reason":"expired"`)
	assert.NotContains(t, out, "never-logged@example.com")

	fallback := NewLogPublisher(nil)
	assert.Same(t, slog.Default(), fallback.log)
}

func TestWatermillPublisher_FromService(t *testing.T) {
	ps := newPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := ps.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	pub, err := NewWatermillPublisher(ps, "")
	require.NoError(t, err)

	var _ session.EventPublisher = pub
	var _ session.EventPublisher = NewLogPublisher(nil)

	require.NoError(t, pub.Publish(ctx, session.Event{Type: session.EventUserRegistered, UserID: "u1"}))
	require.NoError(t, pub.Publish(ctx, session.Event{Type: session.EventRevoked, UserID: "u1"}))

	assert.Equal(t, "user.registered", receive(t, msgs).Metadata.Get(MetaEventType))
	assert.Equal(t, "session.revoked", receive(t, msgs).Metadata.Get(MetaEventType))
}
