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
	"sync"

	"github.com/tcrain/simnet/transport/messages"
	"github.com/tcrain/simnet/transport/queue"
)

// sessionMap is the listener's registry of session id to inbound fast queue,
// protected by a RW mutex. Entries are created lazily by whichever side
// references a session first, the UDP pump or the handshake, and are only
// removed through an explicit release.
type sessionMap struct {
	mutex    sync.RWMutex
	sessions map[string]*queue.FastQueue[messages.Envelope]
}

func newSessionMap() *sessionMap {
	return &sessionMap{sessions: make(map[string]*queue.FastQueue[messages.Envelope])}
}

// get returns the queue for id, or nil when the session is unknown.
func (sm *sessionMap) get(id string) (ret *queue.FastQueue[messages.Envelope]) {
	sm.mutex.RLock()
	ret = sm.sessions[id]
	sm.mutex.RUnlock()
	return ret
}

// getOrCreate returns the queue for id, creating it if absent.
func (sm *sessionMap) getOrCreate(id string) *queue.FastQueue[messages.Envelope] {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	q, ok := sm.sessions[id]
	if !ok {
		q = queue.NewFastQueue[messages.Envelope]()
		sm.sessions[id] = q
	}
	return q
}

// release removes the session from the map.
func (sm *sessionMap) release(id string) {
	sm.mutex.Lock()
	delete(sm.sessions, id)
	sm.mutex.Unlock()
}

// count returns the number of registered sessions.
func (sm *sessionMap) count() int {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return len(sm.sessions)
}
