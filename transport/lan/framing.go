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
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/tcrain/simnet/config"
)

// The steady stream is framed with a 4 byte length prefix. One send call on
// one side is exactly one framed read on the other, regardless of how TCP
// coalesces or splits the writes underneath. UDP datagrams need no prefix.

const frameSizeLen = 4

// writeFrame writes one length prefixed message to the steady stream.
func writeFrame(conn net.Conn, buff []byte) error {
	if len(buff) > config.MaxMsgSize {
		return fmt.Errorf("frame of %v bytes exceeds max message size", len(buff))
	}
	frame := make([]byte, frameSizeLen+len(buff))
	config.Encoding.PutUint32(frame, uint32(len(buff)))
	copy(frame[frameSizeLen:], buff)
	n, err := conn.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("short write, wrote %v of %v bytes", n, len(frame))
	}
	return nil
}

// readFrame reads one length prefixed message from the steady stream.
// It returns io.EOF once the peer has closed the stream.
func readFrame(conn net.Conn) ([]byte, error) {
	sizeBuff := make([]byte, frameSizeLen)
	if _, err := io.ReadFull(conn, sizeBuff); err != nil {
		return nil, err
	}
	size := config.Encoding.Uint32(sizeBuff)
	if size > config.MaxMsgSize {
		return nil, fmt.Errorf("frame of %v bytes exceeds max message size", size)
	}
	buff := make([]byte, size)
	if _, err := io.ReadFull(conn, buff); err != nil {
		return nil, err
	}
	return buff, nil
}

// simLatency sleeps for a random duration up to config.LatencySend ms to
// simulate network delay. It is called before every socket send.
func simLatency() {
	if config.LatencySend > 0 {
		time.Sleep(time.Millisecond * time.Duration(rand.Intn(config.LatencySend)))
	}
}
