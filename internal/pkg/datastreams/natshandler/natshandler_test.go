package natshandler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"gotest.tools/v3/assert"

	"github.com/ohowland/doe_core/internal/pkg/envelope"
	"github.com/ohowland/doe_core/internal/pkg/msg"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nats.json")
	assert.NilError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewSubscribesToBatchTopics(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	defer pub.Close()

	h, err := New(writeConfig(t, `{"Server": "nats://doe-broker:4222"}`), pub)
	assert.NilError(t, err)
	assert.Equal(t, h.config.Server, "nats://doe-broker:4222")

	env := envelope.OperatingEnvelope{ID: uuid.New(), NodeID: "n-a1", ExportLimitKW: 39.1}
	pub.Publish(msg.Envelope, env)

	select {
	case m := <-h.inbox:
		got, ok := m.Payload().(envelope.OperatingEnvelope)
		assert.Assert(t, ok)
		assert.Equal(t, got.NodeID, "n-a1")
	case <-time.After(time.Second):
		t.Fatal("envelope never reached the handler inbox")
	}
}

func TestInboxClosesAfterUnsubscribe(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	defer pub.Close()

	h, err := New(writeConfig(t, `{"Server": "nats://doe-broker:4222"}`), pub)
	assert.NilError(t, err)

	pub.Publish(msg.Envelope, envelope.OperatingEnvelope{ID: uuid.New(), NodeID: "n-a2"})
	pub.Unsubscribe(h.PID())

	// the queued result survives the unsubscribe, then the inbox closes
	select {
	case m, ok := <-h.inbox:
		assert.Assert(t, ok)
		got := m.Payload().(envelope.OperatingEnvelope)
		assert.Equal(t, got.NodeID, "n-a2")
	case <-time.After(time.Second):
		t.Fatal("queued envelope lost on unsubscribe")
	}

	select {
	case _, ok := <-h.inbox:
		assert.Assert(t, !ok)
	case <-time.After(time.Second):
		t.Fatal("inbox never closed after unsubscribe")
	}
}

func TestDefaultServerURL(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	defer pub.Close()

	h, err := New(writeConfig(t, `{}`), pub)
	assert.NilError(t, err)
	assert.Equal(t, h.config.Server, nats.DefaultURL)
}

func TestNewRejectsMissingConfig(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	defer pub.Close()

	_, err := New(filepath.Join(t.TempDir(), "absent.json"), pub)
	assert.Assert(t, err != nil)
}
