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
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcrain/simnet/config"
	"github.com/tcrain/simnet/transport/channelinterface"
	"github.com/tcrain/simnet/transport/messages"
)

type acceptResult struct {
	conn *Conn
	err  error
}

func startAccept(l *Listener) chan acceptResult {
	ch := make(chan acceptResult, 1)
	go func() {
		c, err := l.Accept()
		ch <- acceptResult{c, err}
	}()
	return ch
}

func mustAccept(t *testing.T, ch chan acceptResult) *Conn {
	t.Helper()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.conn
	case <-time.After(10 * time.Second):
		t.Fatal("accept never completed")
		return nil
	}
}

// TestEndToEnd runs a full session over loopback on the default ports, the
// load sequence on the steady channel and movement on the fast channel.
func TestEndToEnd(t *testing.T) {
	l, err := NewListener("127.0.0.1", config.DefaultTCPPort, config.DefaultUDPPort)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	ch := startAccept(l)
	client, err := Dial("127.0.0.1", config.DefaultTCPPort, config.DefaultUDPPort)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	host := mustAccept(t, ch)
	defer func() { _ = host.Close() }()

	assert.Equal(t, host.SessionID(), client.SessionID())
	assert.Equal(t, 1, l.SessionCount())

	// host pushes an entity and blocks until the client has processed it
	done := make(chan error, 1)
	go func() {
		done <- channelinterface.SendSteadyAwaitConsume(host,
			messages.InitialiseEntity{Entity: 7, Data: []byte("state")})
	}()
	var d messages.SteadyMsgData
	require.Eventually(t, func() bool {
		var ok bool
		var rerr error
		d, ok, rerr = client.RecvSteady()
		return rerr == nil && ok
	}, 10*time.Second, time.Millisecond)
	assert.Equal(t, messages.InitialiseEntity{Entity: 7, Data: []byte("state")}, d.Msg)
	require.NotEmpty(t, d.PacketID)
	require.NoError(t, channelinterface.AckSteady(client, d))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("consume ack never arrived")
	}

	require.NoError(t, channelinterface.SendSteady(host, messages.FinaliseLoad{}))
	require.Eventually(t, func() bool {
		d, ok, rerr := client.RecvSteady()
		return rerr == nil && ok && d.Msg == messages.SteadyMsg(messages.FinaliseLoad{})
	}, 10*time.Second, time.Millisecond)

	// fast traffic both ways, resent until seen since loss is allowed
	move := messages.PlayerMove{Session: client.SessionID(), Position: messages.Vec3{1, 2, 3}}
	require.Eventually(t, func() bool {
		require.NoError(t, client.SendFast(move))
		m, ok := host.RecvFast()
		return ok && m == messages.FastMsg(move)
	}, 10*time.Second, 10*time.Millisecond)

	pos := messages.PositionUpdate{Entity: 7, Position: messages.Vec3{4, 5, 6}}
	require.Eventually(t, func() bool {
		require.NoError(t, host.SendFast(pos))
		m, ok := client.RecvFast()
		return ok && m == messages.FastMsg(pos)
	}, 10*time.Second, 10*time.Millisecond)
}

// TestHandshakeIgnoresForeignDatagram drives the listener handshake by hand
// and checks that a datagram carrying someone else's session id cannot bind
// the fast endpoint.
func TestHandshakeIgnoresForeignDatagram(t *testing.T) {
	l, err := NewListener("127.0.0.1", 0, 0)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	ch := startAccept(l)

	tc, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(l.TCPPort())),
		config.TCPDialTimeout*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = tc.Close() }()

	join, err := messages.EncodeHandshake(messages.Handshake{Step: messages.HandshakeJoinRequest})
	require.NoError(t, err)
	require.NoError(t, writeFrame(tc, join))

	require.NoError(t, tc.SetReadDeadline(time.Now().Add(10*time.Second)))
	buff, err := readFrame(tc)
	require.NoError(t, err)
	hs, err := messages.DecodeHandshake(buff)
	require.NoError(t, err)
	require.Equal(t, messages.HandshakePleaseConnectUDP, hs.Step)
	require.NotEmpty(t, hs.Session)

	hostAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: l.UDPPort()}
	rogue, err := net.DialUDP("udp", nil, hostAddr)
	require.NoError(t, err)
	defer func() { _ = rogue.Close() }()
	honest, err := net.DialUDP("udp", nil, hostAddr)
	require.NoError(t, err)
	defer func() { _ = honest.Close() }()

	// the rogue claims the session but its handshake names a different id
	rogueEnv, err := messages.EncodeEnvelope(messages.Envelope{
		Session: hs.Session,
		Handshake: &messages.Handshake{
			Step: messages.HandshakeIConnectedUDP, Session: messages.NewSessionID()},
	})
	require.NoError(t, err)
	_, err = rogue.Write(rogueEnv)
	require.NoError(t, err)

	// give the pump time to classify it, the handshake must still be pending
	time.Sleep(200 * time.Millisecond)
	select {
	case res := <-ch:
		t.Fatalf("foreign datagram completed the handshake: %+v", res)
	default:
	}

	realEnv, err := messages.EncodeEnvelope(messages.Envelope{
		Session: hs.Session,
		Handshake: &messages.Handshake{
			Step: messages.HandshakeIConnectedUDP, Session: hs.Session},
	})
	require.NoError(t, err)
	// resend until the listener binds, datagrams may be lost
	var conn *Conn
	require.Eventually(t, func() bool {
		_, werr := honest.Write(realEnv)
		require.NoError(t, werr)
		select {
		case res := <-ch:
			require.NoError(t, res.err)
			conn = res.conn
			return true
		default:
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)
	defer func() { _ = conn.Close() }()

	require.NoError(t, tc.SetReadDeadline(time.Now().Add(10*time.Second)))
	buff, err = readFrame(tc)
	require.NoError(t, err)
	hs, err = messages.DecodeHandshake(buff)
	require.NoError(t, err)
	assert.Equal(t, messages.HandshakeYoureReady, hs.Step)

	// the bound endpoint is the real client socket, not the rogue's
	honestPort := honest.LocalAddr().(*net.UDPAddr).Port
	roguePort := rogue.LocalAddr().(*net.UDPAddr).Port
	assert.Equal(t, honestPort, conn.RemoteUDPAddr().Port)
	assert.NotEqual(t, roguePort, conn.RemoteUDPAddr().Port)
}

// TestGarbageSteadyFrame checks that an undecodable steady frame is dropped
// without tearing the session down.
func TestGarbageSteadyFrame(t *testing.T) {
	l, host, client := pair(t)
	defer func() { _ = l.Close() }()
	defer func() { _ = host.Close() }()
	defer func() { _ = client.Close() }()

	require.NoError(t, writeFrame(client.tcp, []byte{0xff, 0x00, 0xff}))
	require.NoError(t, client.SendSteady(messages.SteadyMsgData{Msg: messages.Ping{}}))

	require.Eventually(t, func() bool {
		d, ok, err := host.RecvSteady()
		return err == nil && ok && d.Msg == messages.SteadyMsg(messages.Ping{})
	}, 10*time.Second, time.Millisecond)
	assert.True(t, host.IsAlive())
}

// TestDataBeforeClosed checks the drain ordering on a real socket, queued
// messages come out before the closed error appears.
func TestDataBeforeClosed(t *testing.T) {
	l, host, client := pair(t)
	defer func() { _ = l.Close() }()
	defer func() { _ = client.Close() }()

	require.NoError(t, channelinterface.SendSteady(host, messages.Chat{Text: "before"}))
	// make sure the pump delivered it before the socket goes away
	require.Eventually(t, func() bool {
		d, ok, err := client.RecvSteady()
		if err == nil && ok {
			client.RequeueSteady(d)
			return true
		}
		return false
	}, 10*time.Second, time.Millisecond)
	require.NoError(t, host.Close())

	d, ok, err := client.RecvSteady()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, messages.Chat{Text: "before"}, d.Msg)

	require.Eventually(t, func() bool {
		_, _, err := client.RecvSteady()
		return err == channelinterface.ErrConnectionClosed
	}, 10*time.Second, time.Millisecond)
	assert.False(t, client.IsAlive())
}

// TestDataBeforeClosedRace repeats the drain ordering check under racy
// timing, the host closes right after its last send while the client polls.
// The closed error must never come out while the message is still queued.
func TestDataBeforeClosedRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		l, host, client := pair(t)

		go func() {
			_ = channelinterface.SendSteady(host, messages.Ping{})
			_ = host.Close()
		}()

		var seen bool
		deadline := time.Now().Add(10 * time.Second)
		for {
			require.True(t, time.Now().Before(deadline), "reader never saw the closed signal")
			d, ok, err := client.RecvSteady()
			if ok {
				require.Equal(t, messages.Ping{}, d.Msg)
				seen = true
				continue
			}
			if err != nil {
				require.ErrorIs(t, err, channelinterface.ErrConnectionClosed)
				require.True(t, seen, "closed signal observed before the queued message")
				break
			}
		}

		require.NoError(t, client.Close())
		require.NoError(t, l.Close())
	}
}

func TestReleaseSession(t *testing.T) {
	l, host, client := pair(t)
	defer func() { _ = l.Close() }()
	defer func() { _ = client.Close() }()

	require.Equal(t, 1, l.SessionCount())
	require.NoError(t, host.Close())
	// sessions outlive their steady connection unless released
	assert.Equal(t, 1, l.SessionCount())
	l.ReleaseSession(host.SessionID())
	assert.Equal(t, 0, l.SessionCount())
}

// TestFailedHandshakeReleasesSession checks that a handshake that dies
// after the id allocation gives its registry entry back.
func TestFailedHandshakeReleasesSession(t *testing.T) {
	l, err := NewListener("127.0.0.1", 0, 0)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	server, remote := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		_, err := l.initConn(server)
		errCh <- err
	}()

	join, err := messages.EncodeHandshake(messages.Handshake{Step: messages.HandshakeJoinRequest})
	require.NoError(t, err)
	require.NoError(t, writeFrame(remote, join))
	// hang up before the connect request gets through, the listener's next
	// write fails and the attempt is abandoned
	require.NoError(t, remote.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
		var hsErr *channelinterface.HandshakeError
		require.ErrorAs(t, err, &hsErr)
	case <-time.After(10 * time.Second):
		t.Fatal("handshake never failed")
	}
	assert.Equal(t, 0, l.SessionCount())
}

func TestDialNobodyListening(t *testing.T) {
	// bind and release a port so nothing is listening on it
	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := tcp.Addr().(*net.TCPAddr).Port
	require.NoError(t, tcp.Close())

	_, err = Dial("127.0.0.1", port, port)
	assert.Error(t, err)
}

func TestFraming(t *testing.T) {
	a, b := net.Pipe()
	defer func() { _ = a.Close() }()
	defer func() { _ = b.Close() }()

	go func() {
		_ = writeFrame(a, []byte("payload"))
	}()
	buff, err := readFrame(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), buff)

	assert.Error(t, writeFrame(a, make([]byte, config.MaxMsgSize+1)))
}

// pair spins up a listener on free ports and a connected host/client pair.
func pair(t *testing.T) (*Listener, *Conn, *ClientConn) {
	t.Helper()
	l, err := NewListener("127.0.0.1", 0, 0)
	require.NoError(t, err)
	ch := startAccept(l)
	client, err := Dial("127.0.0.1", l.TCPPort(), l.UDPPort())
	require.NoError(t, err)
	host := mustAccept(t, ch)
	return l, host, client
}
