/*
github.com/tcrain/simnet - Transport and session layer for networked simulation testing.
Copyright (C) 2023 The project authors - tcrain

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

*/

package channelinterface

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcrain/simnet/transport/messages"
)

// loopConn records sends and serves a scripted inbound queue.
type loopConn struct {
	mu    sync.Mutex
	sent  []messages.SteadyMsgData
	in    []messages.SteadyMsgData
	alive bool
}

func newLoopConn() *loopConn { return &loopConn{alive: true} }

func (c *loopConn) SessionID() string { return "loop" }

func (c *loopConn) SendSteady(d messages.SteadyMsgData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return ErrConnectionClosed
	}
	c.sent = append(c.sent, d)
	return nil
}

func (c *loopConn) RecvSteady() (messages.SteadyMsgData, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		if !c.alive {
			return messages.SteadyMsgData{}, false, ErrConnectionClosed
		}
		return messages.SteadyMsgData{}, false, nil
	}
	d := c.in[0]
	c.in = c.in[1:]
	return d, true, nil
}

func (c *loopConn) RequeueSteady(d messages.SteadyMsgData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, d)
}

func (c *loopConn) push(d messages.SteadyMsgData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, d)
}

func (c *loopConn) lastSent() (messages.SteadyMsgData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return messages.SteadyMsgData{}, false
	}
	return c.sent[len(c.sent)-1], true
}

func (c *loopConn) pending() []messages.SteadyMsgData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]messages.SteadyMsgData(nil), c.in...)
}

func (c *loopConn) SendFast(messages.FastMsg) error { return nil }

func (c *loopConn) RecvFast() (messages.FastMsg, bool) { return nil, false }

func (c *loopConn) IsAlive() bool { return true }

func (c *loopConn) Close() error { return nil }

var _ Connection = (*loopConn)(nil)

func TestSendSteadyNoPacketID(t *testing.T) {
	c := newLoopConn()
	require.NoError(t, SendSteady(c, messages.KeepAlive{}))
	d, ok := c.lastSent()
	require.True(t, ok)
	assert.Equal(t, messages.KeepAlive{}, d.Msg)
	assert.Empty(t, d.PacketID)
}

func TestAckSteady(t *testing.T) {
	c := newLoopConn()
	// without a packet id there is nothing to acknowledge
	require.NoError(t, AckSteady(c, messages.SteadyMsgData{Msg: messages.Ping{}}))
	_, ok := c.lastSent()
	assert.False(t, ok)

	require.NoError(t, AckSteady(c, messages.SteadyMsgData{Msg: messages.Ping{}, PacketID: "pk-1"}))
	d, ok := c.lastSent()
	require.True(t, ok)
	assert.Equal(t, messages.Consume{PacketID: "pk-1"}, d.Msg)
}

func TestAwaitConsumeMatches(t *testing.T) {
	c := newLoopConn()
	done := make(chan error, 1)
	go func() { done <- SendSteadyAwaitConsume(c, messages.Ping{}) }()

	var sent messages.SteadyMsgData
	require.Eventually(t, func() bool {
		var ok bool
		sent, ok = c.lastSent()
		return ok
	}, 2*time.Second, time.Millisecond)
	require.NotEmpty(t, sent.PacketID)

	// unrelated traffic and a foreign ack must not unblock the wait
	c.push(messages.SteadyMsgData{Msg: messages.Chat{Text: "noise"}})
	c.push(messages.SteadyMsgData{Msg: messages.Consume{PacketID: "someone-else"}})
	select {
	case err := <-done:
		t.Fatalf("unblocked without a matching ack: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	c.push(messages.SteadyMsgData{Msg: messages.Consume{PacketID: sent.PacketID}})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("matching ack never unblocked the wait")
	}

	// everything popped along the way was put back
	var kept []messages.SteadyMsg
	for _, d := range c.pending() {
		kept = append(kept, d.Msg)
	}
	assert.Contains(t, kept, messages.SteadyMsg(messages.Chat{Text: "noise"}))
	assert.Contains(t, kept, messages.SteadyMsg(messages.Consume{PacketID: "someone-else"}))
}

func TestHandshakeErrorUnwrap(t *testing.T) {
	inner := ErrConnectionClosed
	err := &HandshakeError{Reason: "dial", Err: inner}
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Contains(t, err.Error(), "dial")
}
