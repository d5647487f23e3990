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
This package contains the connection abstraction the simulation code is
written against. The LAN and the in-process transports both implement
Connection, so upper layers pick a transport once at construction and never
branch on the kind again.
*/
package channelinterface

import (
	"errors"
	"fmt"

	"github.com/tcrain/simnet/transport/messages"
)

// ErrConnectionClosed is returned by RecvSteady once the peer has closed the
// steady channel and every queued message has been popped. It is terminal,
// every later poll returns it as well.
var ErrConnectionClosed = errors.New("connection closed")

// ErrConsumeTimeout is returned by SendSteadyAwaitConsume when the peer
// never acknowledged the message.
var ErrConsumeTimeout = errors.New("timed out waiting for consume acknowledgment")

// HandshakeError aborts a connection attempt during setup. No session is
// produced and the attempt is not retried.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Connection is one logical association between a host and a participant,
// spanning a reliable (steady) and an unreliable (fast) channel.
//
// Steady messages are ordered and lossless, fast messages may be dropped in
// favor of newer ones. All receive operations are non-blocking polls, the
// transport's pump goroutines fill the queues in the background.
type Connection interface {
	// SessionID returns the session id negotiated during the handshake.
	SessionID() string

	// SendSteady serializes and sends one steady message. Write failures
	// are returned to the caller and are never retried internally.
	SendSteady(d messages.SteadyMsgData) error

	// RecvSteady pops the oldest inbound steady message. It returns
	// (msg, true, nil) when a message is available, (zero, false, nil) when
	// the queue is empty, and (zero, false, ErrConnectionClosed) once the
	// peer has closed and the queue is drained.
	RecvSteady() (messages.SteadyMsgData, bool, error)

	// RequeueSteady puts a popped steady message back so a later RecvSteady
	// yields it again. Used by the consume-ack wait for messages it is not
	// looking for.
	RequeueSteady(d messages.SteadyMsgData)

	// SendFast sends one fast message, fire and forget. Errors are per call
	// and never terminal for the session.
	SendFast(m messages.FastMsg) error

	// RecvFast pops the oldest buffered fast message, returning false when
	// none is available.
	RecvFast() (messages.FastMsg, bool)

	// IsAlive reports whether the steady channel is still up. It flips to
	// false exactly once and never recovers.
	IsAlive() bool

	// Close tears the connection down.
	Close() error
}
