package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
	failOn int // fail after this many successful writes; 0 = never fail
}

func (f *fakeSocket) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.writes) >= f.failOn {
		return assert.AnError
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func TestConnectDoesNotEchoJoinToItself(t *testing.T) {
	h := New(nil, time.Second)
	sock := &fakeSocket{}
	h.Connect("sess1", sock)

	assert.Equal(t, 0, sock.count())
}

func TestConnectBroadcastsJoinSessionToOtherRoomMembers(t *testing.T) {
	h := New(nil, time.Second)
	sockA := &fakeSocket{}
	h.Connect("sess1", sockA)

	sockB := &fakeSocket{}
	h.Connect("sess1", sockB)

	require.Equal(t, 1, sockA.count()) // notified of B joining
	assert.Equal(t, 0, sockB.count())  // B itself gets nothing

	var env Envelope
	require.NoError(t, json.Unmarshal(sockA.writes[0], &env))
	assert.Equal(t, MessageJoinSession, env.Type)
}

func TestBroadcastSessionReachesOnlyItsRoom(t *testing.T) {
	h := New(nil, time.Second)
	sockA := &fakeSocket{}
	sockB := &fakeSocket{}
	h.Connect("sess1", sockA)
	h.Connect("sess2", sockB)

	h.BroadcastSession("sess1", Envelope{Type: MessageStageStarted})

	assert.Equal(t, 1, sockA.count())
	assert.Equal(t, 0, sockB.count())
}

func TestBroadcastSessionExcludesGivenClient(t *testing.T) {
	h := New(nil, time.Second)
	sockA := &fakeSocket{}
	sockB := &fakeSocket{}
	idA := h.Connect("sess1", sockA)
	h.Connect("sess1", sockB)

	h.BroadcastSession("sess1", Envelope{Type: MessageStageStarted}, idA)

	assert.Equal(t, 1, sockA.count()) // only the earlier join notice of B
	assert.Equal(t, 1, sockB.count()) // the broadcast, excluded from A
}

func TestBroadcastAllSessionsReachesEveryClient(t *testing.T) {
	h := New(nil, time.Second)
	sockA := &fakeSocket{}
	sockB := &fakeSocket{}
	h.Connect("sess1", sockA)
	h.Connect("sess2", sockB)

	h.BroadcastSession(AllSessions, Envelope{Type: MessageSimulationError})

	assert.Equal(t, 1, sockA.count())
	assert.Equal(t, 1, sockB.count())
}

func TestDisconnectBroadcastsLeaveSessionToRemainingMembers(t *testing.T) {
	h := New(nil, time.Second)
	sockA := &fakeSocket{}
	sockB := &fakeSocket{}
	h.Connect("sess1", sockA)
	idB := h.Connect("sess1", sockB)

	before := sockA.count()
	h.Disconnect(idB)

	require.Equal(t, before+1, sockA.count())
	var env Envelope
	require.NoError(t, json.Unmarshal(sockA.writes[len(sockA.writes)-1], &env))
	assert.Equal(t, MessageLeaveSession, env.Type)
}

func TestDisconnectRemovesFromRoomAndClosesSocket(t *testing.T) {
	h := New(nil, time.Second)
	sock := &fakeSocket{}
	id := h.Connect("sess1", sock)

	h.Disconnect(id)

	assert.True(t, sock.closed)
	assert.Equal(t, 0, h.RoomSize("sess1"))
	assert.Equal(t, 0, h.ActiveConnections())
}

func TestBroadcastToEmptiedRoomIsNoop(t *testing.T) {
	h := New(nil, time.Second)
	sock := &fakeSocket{}
	id := h.Connect("sess1", sock)
	h.Disconnect(id)

	assert.NotPanics(t, func() {
		h.BroadcastSession("sess1", Envelope{Type: MessageStageCompleted})
	})
}

func TestHandleClientHeartbeatUpdatesTimestampAndEchoes(t *testing.T) {
	h := New(nil, time.Second)
	sock := &fakeSocket{}
	id := h.Connect("sess1", sock)

	before := sock.count()
	h.HandleClient(id, ClientMessage{Type: MessageHeartbeat})
	assert.Equal(t, before+1, sock.count())

	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	assert.Less(t, c.heartbeatAge(), time.Second)
}

func TestHandleClientNonHeartbeatIgnored(t *testing.T) {
	h := New(nil, time.Second)
	sock := &fakeSocket{}
	id := h.Connect("sess1", sock)

	before := sock.count()
	h.HandleClient(id, ClientMessage{Type: MessageAgentAction})
	assert.Equal(t, before, sock.count())
}

func TestCleanupStaleDisconnectsOldClients(t *testing.T) {
	h := New(nil, time.Second)
	sock := &fakeSocket{}
	id := h.Connect("sess1", sock)

	h.mu.Lock()
	h.clients[id].lastHeartbeat = time.Now().Add(-time.Hour)
	h.mu.Unlock()

	removed := h.CleanupStale(time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, h.ActiveConnections())
}

func TestSendFailureTriggersDisconnect(t *testing.T) {
	h := New(nil, time.Second)
	sock := &fakeSocket{failOn: 1} // first write succeeds, second fails
	id := h.Connect("sess1", sock)

	h.Send(id, Envelope{Type: MessageTraceLog})
	assert.Equal(t, 1, h.ActiveConnections())

	h.Send(id, Envelope{Type: MessageTraceLog})
	assert.Equal(t, 0, h.ActiveConnections())
}
