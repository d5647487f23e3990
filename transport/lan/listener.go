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
This package contains the LAN transport. The host runs a Listener with one
TCP listening port for the steady channels and one shared UDP socket for all
fast traffic. Each accepted client becomes a Conn after the four step
handshake. Clients connect with Dial and get a ClientConn. Both satisfy
channelinterface.Connection.
*/
package lan

import (
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
)

// Listener is the host side of the LAN transport. A single UDP socket
// multiplexes the fast traffic of every session, the udpPump goroutine
// classifies each inbound datagram into the owning session's bounded queue.
type Listener struct {
	tcp      net.Listener
	udp      *net.UDPConn
	sessions *sessionMap
	closed   int32
	wgPump   sync.WaitGroup
}

// NewListener binds the steady TCP port and the fast UDP port and starts
// the fast channel pump. Port 0 binds any free port, see TCPPort and
// UDPPort for the chosen ones.
func NewListener(host string, tcpPort, udpPort int) (*Listener, error) {
	tcp, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(tcpPort)))
	if err != nil {
		return nil, err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(udpPort)))
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}
	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}

	l := &Listener{
		tcp:      tcp,
		udp:      udp,
		sessions: newSessionMap(),
	}
	l.wgPump.Add(1)
	go l.udpPump()
	logging.Infof("listening on %v (steady) and %v (fast)", tcp.Addr(), udp.LocalAddr())
	return l, nil
}

// TCPPort returns the local steady port.
func (l *Listener) TCPPort() int {
	return l.tcp.Addr().(*net.TCPAddr).Port
}

// UDPPort returns the local fast port.
func (l *Listener) UDPPort() int {
	return l.udp.LocalAddr().(*net.UDPAddr).Port
}

// udpPump drains the shared fast socket for the lifetime of the listener.
// Undecodable datagrams are dropped, a datagram for an unknown session
// creates the session's queue on the spot.
func (l *Listener) udpPump() {
	defer l.wgPump.Done()
	buff := make([]byte, config.UDPBuffSize)
	for {
		n, addr, err := l.udp.ReadFromUDP(buff)
		if err != nil {
			if atomic.LoadInt32(&l.closed) == 0 {
				logging.Errorf("fast socket read failed: %v", err)
			}
			return
		}
		env, err := messages.DecodeEnvelope(buff[:n])
		if err != nil {
			logging.Infof("dropping undecodable datagram from %v: %v", addr, err)
			continue
		}
		env.Src = addr.String()
		l.sessions.getOrCreate(env.Session).Push(env)
	}
}

// pollFast pops the oldest buffered envelope for the session.
func (l *Listener) pollFast(id string) (messages.Envelope, bool) {
	q := l.sessions.get(id)
	if q == nil {
		return messages.Envelope{}, false
	}
	return q.Pop()
}

// sendFast serializes env and sends it to addr over the shared socket.
func (l *Listener) sendFast(addr *net.UDPAddr, env messages.Envelope) error {
	buff, err := messages.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	simLatency()
	_, err = l.udp.WriteToUDP(buff, addr)
	return err
}

// Accept waits for the next client and runs the listener side of the
// handshake. A failed handshake closes the stream, yields no session, and
// is not retried, the error tells the caller why.
func (l *Listener) Accept() (*Conn, error) {
	tc, err := l.tcp.Accept()
	if err != nil {
		return nil, err
	}
	conn, err := l.initConn(tc)
	if err != nil {
		_ = tc.Close()
		return nil, err
	}
	return conn, nil
}

// initConn is the listener's handshake coordinator. It allocates the session
// id, waits for the client's datagram to bind the fast endpoint, and only
// hands the session out after YoureReady is on the wire.
func (l *Listener) initConn(tc net.Conn) (*Conn, error) {
	deadline := time.Now().Add(config.HandshakeTimeout * time.Millisecond)
	if err := tc.SetDeadline(deadline); err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "setting handshake deadline", Err: err}
	}

	buff, err := readFrame(tc)
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "reading join request", Err: err}
	}
	hs, err := messages.DecodeHandshake(buff)
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "decoding join request", Err: err}
	}
	if hs.Step != messages.HandshakeJoinRequest {
		return nil, &channelinterface.HandshakeError{Reason: "expected join request"}
	}

	// the id exists before the first response and never changes. A failed
	// handshake must give its registry entry back, rejected attempts do not
	// count as sessions.
	id := messages.NewSessionID()
	l.sessions.getOrCreate(id)
	established := false
	defer func() {
		if !established {
			l.sessions.release(id)
		}
	}()
	logging.Debugf("new connection from %v, session %v", tc.RemoteAddr(), id)

	connectReq := messages.Handshake{Step: messages.HandshakePleaseConnectUDP, Session: id}
	if err := l.writeHandshake(tc, connectReq); err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "sending udp connect request", Err: err}
	}

	// wait for the client's datagram so we learn its fast endpoint, with a
	// bounded poll. The connect request is re-sent in case the datagram or
	// our TCP response was lost on the way.
	var src string
	nextResend := time.Now().Add(config.HandshakeRetry * time.Millisecond)
	for src == "" {
		if time.Now().After(deadline) {
			return nil, &channelinterface.HandshakeError{Reason: "timed out waiting for udp connect"}
		}
		env, ok := l.pollFast(id)
		switch {
		case ok && env.Handshake != nil &&
			env.Handshake.Step == messages.HandshakeIConnectedUDP &&
			env.Handshake.Session == id:
			src = env.Src
		case ok:
			// wrong variant or mismatched id on the fast path is ignored
			logging.Debugf("ignoring unexpected handshake datagram for session %v", id)
		default:
			if time.Now().After(nextResend) {
				if err := l.writeHandshake(tc, connectReq); err != nil {
					return nil, &channelinterface.HandshakeError{Reason: "re-sending udp connect request", Err: err}
				}
				nextResend = time.Now().Add(config.HandshakeRetry * time.Millisecond)
			}
			time.Sleep(config.HandshakePollInterval * time.Millisecond)
		}
	}

	udpAddr, err := net.ResolveUDPAddr("udp", src)
	if err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "resolving client udp address", Err: err}
	}

	ready := messages.Handshake{Step: messages.HandshakeYoureReady, Session: id}
	if err := l.writeHandshake(tc, ready); err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "sending ready", Err: err}
	}

	if err := tc.SetDeadline(time.Time{}); err != nil {
		return nil, &channelinterface.HandshakeError{Reason: "clearing handshake deadline", Err: err}
	}
	established = true
	logging.Infof("session %v ready, fast endpoint %v", id, udpAddr)
	return newConn(l, id, tc, udpAddr), nil
}

func (l *Listener) writeHandshake(tc net.Conn, h messages.Handshake) error {
	buff, err := messages.EncodeHandshake(h)
	if err != nil {
		return err
	}
	simLatency()
	return writeFrame(tc, buff)
}

// SessionCount returns the number of sessions in the registry, including
// ones whose steady connection has already gone away.
func (l *Listener) SessionCount() int {
	return l.sessions.count()
}

// ReleaseSession drops a session's fast queue from the registry. The
// registry is never pruned automatically unless
// config.ReleaseSessionOnClose is set, hosts that churn through many
// short-lived sessions call this when they are done with one.
func (l *Listener) ReleaseSession(id string) {
	l.sessions.release(id)
}

// Close shuts the listening sockets down. Established Conns fail on their
// next socket operation.
func (l *Listener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	err := multierr.Append(l.tcp.Close(), l.udp.Close())
	l.wgPump.Wait()
	return err
}
