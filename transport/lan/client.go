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
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/tcrain/simnet/config"
	"github.com/tcrain/simnet/transport/channelinterface"
	"github.com/tcrain/simnet/transport/logging"
	"github.com/tcrain/simnet/transport/messages"
	"github.com/tcrain/simnet/transport/queue"
)

// ClientConn is the participant's side of a session. Its UDP socket is
// connected to the host's single fast port, so unlike the listener no
// session demultiplexing is needed, everything arriving on the socket
// belongs to this session.
type ClientConn struct {
	uuid string
	tcp  net.Conn
	udp  *net.UDPConn

	steadyIn  *queue.SteadyQueue
	fastIn    *queue.FastQueue[messages.FastMsg]
	alive     int32
	writeLock sync.Mutex
	wgPump    sync.WaitGroup
}

var _ channelinterface.Connection = (*ClientConn)(nil)

// Dial connects to a host, runs the client side of the handshake, and
// returns the session once the host reports it ready. Any unexpected
// message on the steady channel during setup is a fatal handshake failure,
// the attempt yields no session and is not retried.
func Dial(host string, tcpPort, udpPort int) (*ClientConn, error) {
	tcp, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(tcpPort)),
		config.TCPDialTimeout*time.Millisecond)
	if err != nil {
		return nil, err
	}
	conn, err := handshakeClient(tcp, host, udpPort)
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}
	return conn, nil
}

func handshakeClient(tcp net.Conn, host string, udpPort int) (*ClientConn, error) {
	deadline := time.Now().Add(config.HandshakeTimeout * time.Millisecond)
	if err := tcp.SetDeadline(deadline); err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "setting handshake deadline", Err: err}
	}

	join, err := messages.EncodeHandshake(messages.Handshake{Step: messages.HandshakeJoinRequest})
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "encoding join request", Err: err}
	}
	simLatency()
	if err := writeFrame(tcp, join); err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "sending join request", Err: err}
	}

	buff, err := readFrame(tcp)
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "reading join response", Err: err}
	}
	hs, err := messages.DecodeHandshake(buff)
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "decoding join response", Err: err}
	}
	if hs.Step != messages.HandshakePleaseConnectUDP || hs.Session == "" {
		return nil, &channelinterface.HandshakeError{Reason: "expected udp connect request"}
	}
	id := hs.Session
	logging.Debugf("joined as session %v, binding fast socket", id)

	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(udpPort)))
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "resolving fast address", Err: err}
	}
	udp, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "binding fast socket", Err: err}
	}

	connected := messages.Envelope{
		Session:   id,
		Handshake: &messages.Handshake{Step: messages.HandshakeIConnectedUDP, Session: id},
	}
	if err := sendEnvelope(udp, connected); err != nil {
		_ = udp.Close()
		return nil, &channelinterface.HandshakeError{Reason: "sending udp connect", Err: err}
	}

	// block on the steady channel until the host reports the session ready.
	// A duplicate connect request means our datagram was lost, re-send it.
	for {
		buff, err := readFrame(tcp)
		if err != nil {
			_ = udp.Close()
			return nil, &channelinterface.HandshakeError{Reason: "waiting for ready", Err: err}
		}
		hs, err := messages.DecodeHandshake(buff)
		if err != nil {
			_ = udp.Close()
			return nil, &channelinterface.HandshakeError{Reason: "decoding handshake message", Err: err}
		}
		if hs.Session != id {
			_ = udp.Close()
			return nil, &channelinterface.HandshakeError{Reason: "mismatched session id"}
		}
		if hs.Step == messages.HandshakeYoureReady {
			break
		}
		if hs.Step != messages.HandshakePleaseConnectUDP {
			_ = udp.Close()
			return nil, &channelinterface.HandshakeError{Reason: "unexpected handshake message"}
		}
		if err := sendEnvelope(udp, connected); err != nil {
			_ = udp.Close()
			return nil, &channelinterface.HandshakeError{Reason: "re-sending udp connect", Err: err}
		}
	}

	if err := tcp.SetDeadline(time.Time{}); err != nil {
		_ = udp.Close()
		return nil, &channelinterface.HandshakeError{Reason: "clearing handshake deadline", Err: err}
	}

	c := &ClientConn{
		uuid:     id,
		tcp:      tcp,
		udp:      udp,
		steadyIn: queue.NewSteadyQueue(),
		fastIn:   queue.NewFastQueue[messages.FastMsg](),
		alive:    1,
	}
	c.wgPump.Add(2)
	go c.steadyPump()
	go c.fastPump()
	logging.Infof("session %v ready", id)
	return c, nil
}

func sendEnvelope(udp *net.UDPConn, env messages.Envelope) error {
	buff, err := messages.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	simLatency()
	_, err = udp.Write(buff)
	return err
}

// SessionID returns the session id assigned by the host.
func (c *ClientConn) SessionID() string { return c.uuid }

// steadyPump mirrors Conn.steadyPump on the client side.
func (c *ClientConn) steadyPump() {
	defer c.wgPump.Done()
	for {
		buff, err := readFrame(c.tcp)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logging.Infof("session %v: host closed steady channel", c.uuid)
			} else if atomic.LoadInt32(&c.alive) == 1 {
				logging.Warningf("session %v: steady read failed: %v", c.uuid, err)
			}
			atomic.StoreInt32(&c.alive, 0)
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

// fastPump drains the connected UDP socket into the bounded fast queue.
// Envelopes carrying handshake payloads are ignored here, the handshake is
// long over by the time this runs.
func (c *ClientConn) fastPump() {
	defer c.wgPump.Done()
	buff := make([]byte, config.UDPDatagramMax)
	for {
		n, err := c.udp.Read(buff)
		if err != nil {
			if atomic.LoadInt32(&c.alive) == 1 {
				logging.Infof("session %v: fast socket read failed: %v", c.uuid, err)
			}
			return
		}
		env, err := messages.DecodeEnvelope(buff[:n])
		if err != nil {
			logging.Infof("session %v: dropping undecodable datagram: %v", c.uuid, err)
			continue
		}
		if env.Fast != nil {
			c.fastIn.Push(env.Fast)
		}
	}
}

// SendSteady serializes and writes one steady frame to the host.
func (c *ClientConn) SendSteady(d messages.SteadyMsgData) error {
	buff, err := messages.EncodeSteady(d)
	if err != nil {
		return err
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	simLatency()
	return writeFrame(c.tcp, buff)
}

// RecvSteady pops the oldest inbound steady message, see
// channelinterface.Connection.
//
// Liveness is read before the pop, as in Conn.RecvSteady, so frames the
// pump delivered before the connection died always drain before the closed
// signal.
func (c *ClientConn) RecvSteady() (messages.SteadyMsgData, bool, error) {
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
func (c *ClientConn) RequeueSteady(d messages.SteadyMsgData) {
	c.steadyIn.Push(d)
}

// SendFast sends one fast message to the host, fire and forget.
func (c *ClientConn) SendFast(m messages.FastMsg) error {
	return sendEnvelope(c.udp, messages.Envelope{Session: c.uuid, Fast: m})
}

// RecvFast pops the oldest buffered fast message.
func (c *ClientConn) RecvFast() (messages.FastMsg, bool) {
	return c.fastIn.Pop()
}

// IsAlive reports whether the steady stream is still up.
func (c *ClientConn) IsAlive() bool {
	return atomic.LoadInt32(&c.alive) == 1
}

// Close shuts down both sockets and waits for the pumps to stop.
func (c *ClientConn) Close() error {
	atomic.StoreInt32(&c.alive, 0)
	err := multierr.Append(c.tcp.Close(), c.udp.Close())
	c.wgPump.Wait()
	return err
}
