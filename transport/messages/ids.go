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

package messages

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// NewSessionID returns a fresh globally unique session id.
func NewSessionID() string {
	return uuid.NewString()
}

// NewPacketID returns a fresh id for a steady message awaiting a consume
// acknowledgment.
func NewPacketID() string {
	return uuid.NewString()
}

// EntityIDSource hands out entity ids. It is owned by whoever builds the
// entity store and passed down explicitly, there is no process wide counter.
// Safe for concurrent use.
type EntityIDSource struct {
	next uint64
}

// NewEntityIDSource returns a source whose first id is start+1.
func NewEntityIDSource(start uint64) *EntityIDSource {
	return &EntityIDSource{next: start}
}

// Next returns the next entity id.
func (s *EntityIDSource) Next() uint64 {
	return atomic.AddUint64(&s.next, 1)
}
