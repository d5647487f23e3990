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
General configuration settings for the transport layer.
*/
package config

import "encoding/binary"

const (
	// Queues
	FastQueueLimit = 4 // max buffered fast updates per session, older entries are evicted first

	// Network
	MaxMsgSize     = 1 << 20 // bytes, any larger steady frame is rejected
	UDPBuffSize    = 4096    // bytes, read buffer for the shared listener socket
	UDPDatagramMax = 2048    // bytes, read buffer for the client socket
	TCPDialTimeout = 5000    // milliseconds for the client TCP dial

	// Handshake
	HandshakeTimeout      = 20000 // milliseconds before an incomplete handshake is abandoned
	HandshakeRetry        = 5000  // milliseconds between resends of the UDP connect request
	HandshakePollInterval = 5     // milliseconds between polls of the fast queue while waiting for the UDP handshake message

	// Consume acknowledgments
	ConsumeAckTimeout   = 30000 // milliseconds before a send awaiting a consume ack gives up
	ConsumePollInterval = 10    // milliseconds between polls while waiting for a consume ack

	// Default ports for tests and the demo binaries
	DefaultTCPPort = 7777
	DefaultUDPPort = 7778
)

// LatencySend simulates network delay, sends sleep up to this value in ms
// before hitting the socket. 0 disables the hook.
var LatencySend = 0

// ReleaseSessionOnClose removes a session's fast queue from the listener
// registry when the steady connection closes. The default keeps entries
// forever, which is what the upper layers were written against, so eviction
// stays opt-in.
var ReleaseSessionOnClose = false

// Encoding is the byte order for the steady frame length prefix.
var Encoding = binary.BigEndian
