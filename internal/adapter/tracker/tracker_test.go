package tracker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNatsTracker_PublishesToPartitionSubject(t *testing.T) {
	server, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	tr := NewNatsTracker(nc, "code_indexer", 24)
	assert.Equal(t, "code_indexer.refs.2", tr.Subject(50))

	sub, err := nc.SubscribeSync("code_indexer.refs.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, tr.Track(context.Background(), 50, "h1", "h2"))
	// 空列表不发布
	require.NoError(t, tr.Track(context.Background(), 50))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "code_indexer.refs.2", msg.Subject)

	var payload refsPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, int64(50), payload.ProjectID)
	assert.Equal(t, "50", payload.Routing)
	assert.Equal(t, []string{"h1", "h2"}, payload.Refs)

	_, err = sub.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout)
}
