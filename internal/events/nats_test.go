package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/shortlink/internal/shortener"
	"github.com/koopa0/shortlink/internal/testutils"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	sent []message
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message{subject: subject, data: data})
	return nil
}

func sampleEvent(typ string) shortener.Event {
	return shortener.Event{
		Type:      typ,
		LinkID:    "0b7f5c1e-0d8f-4c59-9d0b-3c1b7a0e9a11",
		Code:      "abc1234",
		LongURL:   "https://example.com",
		VisitorID: "v1",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNATS_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "")

	require.NoError(t, p.Publish(context.Background(), sampleEvent(shortener.EventLinkCreated)))
	require.Len(t, conn.sent, 1)
	assert.Equal(t, "shortlink.link.created", conn.sent[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(conn.sent[0].data, &got))
	assert.Equal(t, "link.created", got["type"])
	assert.Equal(t, "abc1234", got["code"])
	assert.Equal(t, "https://example.com", got["long_url"])
	assert.Equal(t, "v1", got["visitor_id"])
}

func TestNATS_PublishErrors(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "links")
	assert.Equal(t, "links.link.deleted", p.Subject(shortener.EventLinkDeleted))

	err := p.Publish(context.Background(), sampleEvent(shortener.EventLinkDeleted))
	assert.ErrorContains(t, err, "publish link.deleted")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, sampleEvent(shortener.EventLinkCreated)), context.Canceled)
}

func TestNATS_CloseWithoutOwnedConnection(t *testing.T) {
	assert.NoError(t, newPublisher(&fakeConn{}, "").Close())
}

// TestNATS_Integration 對真實 NATS 發布並訂閱（需要 Docker）
func TestNATS_Integration(t *testing.T) {
	testutils.SkipIfShort(t)
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)

	p, err := Connect(endpoint, "test", testutils.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	sub, err := nats.Connect(endpoint)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	received := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("test.>", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	require.NoError(t, p.Publish(ctx, sampleEvent(shortener.EventLinkCreated)))

	select {
	case msg := <-received:
		assert.Equal(t, "test.link.created", msg.Subject)
		var event shortener.Event
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		assert.Equal(t, "abc1234", event.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}
