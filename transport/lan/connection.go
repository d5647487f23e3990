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

package lan

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/tcrain/simnet/config"
	"github.com/tcrain/simnet/transport/channelinterface"
	"github.com/tcrain/simnet/transport/logging"
	"github.com/tcrain/simnet/transport/messages"
	"github.com/tcrain/simnet/transport/queue"
)

// Conn is the host's side of one established session. Fast traffic goes
// through the listener's shared socket, steady traffic through the per
// session TCP stream. A pump goroutine owns all reads from the stream,
// sends take the write mutex, so there is a single logical reader and
// writer at any time.
type Conn struct {
	listener  *Listener
	uuid      string
	tcp       net.Conn
	remoteUDP *net.UDPAddr

	steadyIn  *queue.SteadyQueue
	alive     int32
	writeLock sync.Mutex
	wgPump    sync.WaitGroup
}

var _ channelinterface.Connection = (*Conn)(nil)

func newConn(l *Listener, uuid string, tcp net.Conn, remoteUDP *net.UDPAddr) *Conn {
	c := &Conn{
		listener:  l,
		uuid:      uuid,
		tcp:       tcp,
		remoteUDP: remoteUDP,
		steadyIn:  queue.NewSteadyQueue(),
		alive:     1,
	}
	c.wgPump.Add(1)
	go c.steadyPump()
	return c
}

// SessionID returns the session id negotiated during the handshake.
func (c *Conn) SessionID() string { return c.uuid }

// RemoteUDPAddr returns the fast endpoint observed during the handshake.
func (c *Conn) RemoteUDPAddr() *net.UDPAddr { return c.remoteUDP }

// steadyPump drains the steady stream into the inbound queue until the peer
// closes or the stream errors. A frame that fails to decode is logged and
// dropped, the session stays alive.
func (c *Conn) steadyPump() {
	defer c.wgPump.Done()
	for {
		buff, err := readFrame(c.tcp)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logging.Infof("session %v: peer closed steady channel", c.uuid)
			} else if atomic.LoadInt32(&c.alive) == 1 {
				logging.Warningf("session %v: steady read failed: %v", c.uuid, err)
			}
			c.markDead()
			return
		}
		d, err := messages.DecodeSteady(buff)
		if err != nil {
			logging.Warningf("session %v: dropping undecodable steady frame: %v", c.uuid, err)
			continue
		}
		c.steadyIn.Push(d)
	}
}

func (c *Conn) markDead() {
	if atomic.CompareAndSwapInt32(&c.alive, 1, 0) {
		if config.ReleaseSessionOnClose {
			c.listener.ReleaseSession(c.uuid)
		}
	}
}

// SendSteady serializes and writes one steady frame. Failures are returned
// to the caller and never retried internally.
func (c *Conn) SendSteady(d messages.SteadyMsgData) error {
	buff, err := messages.EncodeSteady(d)
	if err != nil {
		return err
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	simLatency()
	return writeFrame(c.tcp, buff)
}

// RecvSteady pops the oldest inbound steady message. Once the peer has
// closed and the queue is drained it returns
// channelinterface.ErrConnectionClosed forever.
//
// Liveness is read before the pop. The pump pushes before it marks the
// connection dead, so a death observed here means every frame it delivered
// is already visible to the pop and drains first.
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

// SendFast sends one fast message to the client's bound endpoint, fire and
// forget.
func (c *Conn) SendFast(m messages.FastMsg) error {
	return c.listener.sendFast(c.remoteUDP, messages.Envelope{Session: c.uuid, Fast: m})
}

// RecvFast pops the oldest buffered fast message for this session.
// Handshake envelopes, including late duplicates from the connection setup,
// are skipped.
func (c *Conn) RecvFast() (messages.FastMsg, bool) {
	for {
		env, ok := c.listener.pollFast(c.uuid)
		if !ok {
			return nil, false
		}
		if env.Fast != nil {
			return env.Fast, true
		}
	}
}

// IsAlive reports whether the steady stream is still up.
func (c *Conn) IsAlive() bool {
	return atomic.LoadInt32(&c.alive) == 1
}

// Close shuts down the steady stream and stops the pump. The session's
// registry entry stays around unless config.ReleaseSessionOnClose is set.
func (c *Conn) Close() error {
	err := c.tcp.Close()
	c.markDead()
	c.wgPump.Wait()
	return err
}
