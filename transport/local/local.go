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

/*
This package contains the in-process transport, used when client and host
run in the same process, for example a player hosting the simulation they
are playing in. It keeps the steady/fast split and the consume
acknowledgment discipline of the LAN transport but moves messages through
shared queues instead of sockets, so upper layers cannot tell the two
apart.
*/
package local

import (
	"sync/atomic"

	"github.com/tcrain/simnet/transport/channelinterface"
	"github.com/tcrain/simnet/transport/messages"
	"github.com/tcrain/simnet/transport/queue"
)

// Conn is one end of an in-process session. Sends push into the peer's
// inbound queues, so the fast channel keeps the same bounded drop-oldest
// behavior as the LAN transport.
type Conn struct {
	uuid     string
	peer     *Conn
	steadyIn *queue.SteadyQueue
	fastIn   *queue.FastQueue[messages.FastMsg]
	closed   *int32 // shared between both ends
}

var _ channelinterface.Connection = (*Conn)(nil)

// NewPair returns the host and client ends of a fresh in-process session.
// There is no handshake to run, the session id is allocated immediately.
func NewPair() (host, client *Conn) {
	id := messages.NewSessionID()
	closed := new(int32)
	host = &Conn{
		uuid:     id,
		steadyIn: queue.NewSteadyQueue(),
		fastIn:   queue.NewFastQueue[messages.FastMsg](),
		closed:   closed,
	}
	client = &Conn{
		uuid:     id,
		steadyIn: queue.NewSteadyQueue(),
		fastIn:   queue.NewFastQueue[messages.FastMsg](),
		closed:   closed,
	}
	host.peer = client
	client.peer = host
	return host, client
}

// SessionID returns the session id shared by both ends.
func (c *Conn) SessionID() string { return c.uuid }

// SendSteady delivers one steady message to the peer's inbound queue.
func (c *Conn) SendSteady(d messages.SteadyMsgData) error {
	if !c.IsAlive() {
		return channelinterface.ErrConnectionClosed
	}
	c.peer.steadyIn.Push(d)
	return nil
}

// RecvSteady pops the oldest inbound steady message, see
// channelinterface.Connection.
//
// Liveness is read before the pop. A sender pushes before it closes, so a
// close observed here means every message queued before it is already
// visible to the pop and drains first.
func (c *Conn) RecvSteady() (messages.SteadyMsgData, bool, error) {
	alive := c.IsAlive()
	if d, ok := c.steadyIn.Pop(); ok {
		return d, true, nil
	}
	if !alive {
		return messages.SteadyMsgData{}, false, channelinterface.ErrConnectionClosed
	}
	return messages.SteadyMsgData{}, false, nil
}

// RequeueSteady puts a popped message back at the end of the inbound queue.
func (c *Conn) RequeueSteady(d messages.SteadyMsgData) {
	c.steadyIn.Push(d)
}

// SendFast delivers one fast message to the peer's bounded queue, evicting
// the oldest buffered update when it is full.
func (c *Conn) SendFast(m messages.FastMsg) error {
	if !c.IsAlive() {
		return channelinterface.ErrConnectionClosed
	}
	c.peer.fastIn.Push(m)
	return nil
}

// RecvFast pops the oldest buffered fast message.
func (c *Conn) RecvFast() (messages.FastMsg, bool) {
	return c.fastIn.Pop()
}

// IsAlive reports whether the session is still open. Closing either end
// closes both.
func (c *Conn) IsAlive() bool {
	return atomic.LoadInt32(c.closed) == 0
}

// Close tears the session down for both ends. Messages already queued stay
// readable, matching the LAN transport's data-before-closure ordering.
func (c *Conn) Close() error {
	atomic.StoreInt32(c.closed, 1)
	return nil
}
