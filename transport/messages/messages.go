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
This package contains the message types exchanged between a simulation host
and its participants, and their binary wire encoding.

Steady messages travel over the reliable channel and are ordered and lossless.
Fast messages travel over the unreliable channel and may be dropped or
reordered, so they only carry state that is safe to lose. Handshake messages
are used during connection setup on both channels. The transport never
interprets entity payloads, they are carried as opaque bytes.
*/
package messages

// Vec3 is a position or displacement vector.
type Vec3 [3]float32

// Quat is a rotation quaternion.
type Quat [4]float32

// SteadyMsgID identifies the variant of a steady message on the wire.
type SteadyMsgID uint8

const (
	IDConsume SteadyMsgID = iota + 1
	IDKeepAlive
	IDPing
	IDInitialiseEntity
	IDRemoveEntity
	IDFinaliseLoad
	IDChat
	IDSetName
	IDNameRejected
	IDRespawn
)

// SteadyMsg is implemented by all steady message variants.
type SteadyMsg interface {
	// SteadyID returns the wire identifier of the variant.
	SteadyID() SteadyMsgID
}

// SteadyMsgData wraps a steady message with its packet id.
// PacketID is non-empty iff the sender awaits a consume acknowledgment.
type SteadyMsgData struct {
	Msg      SteadyMsg
	PacketID string
}

// Consume acknowledges that the application processed the steady message
// with the given packet id. It is the only steady message that is never
// itself acknowledged.
type Consume struct {
	PacketID string `cbor:"1,keyasint"`
}

func (Consume) SteadyID() SteadyMsgID { return IDConsume }

// KeepAlive carries no data, it just keeps the steady connection warm.
type KeepAlive struct{}

func (KeepAlive) SteadyID() SteadyMsgID { return IDKeepAlive }

// Ping requests any response from the peer.
type Ping struct{}

func (Ping) SteadyID() SteadyMsgID { return IDPing }

// InitialiseEntity tells a client to create an entity. Data is the encoded
// entity state, opaque to the transport.
type InitialiseEntity struct {
	Entity uint64 `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

func (InitialiseEntity) SteadyID() SteadyMsgID { return IDInitialiseEntity }

// RemoveEntity tells a client to drop an entity.
type RemoveEntity struct {
	Entity uint64 `cbor:"1,keyasint"`
}

func (RemoveEntity) SteadyID() SteadyMsgID { return IDRemoveEntity }

// FinaliseLoad marks the end of the initial entity burst sent to a new
// session.
type FinaliseLoad struct{}

func (FinaliseLoad) SteadyID() SteadyMsgID { return IDFinaliseLoad }

// Chat is a text message attributed to a session.
type Chat struct {
	Session string `cbor:"1,keyasint"`
	Text    string `cbor:"2,keyasint"`
}

func (Chat) SteadyID() SteadyMsgID { return IDChat }

// SetName requests or announces a display name for a session.
type SetName struct {
	Session string `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint"`
}

func (SetName) SteadyID() SteadyMsgID { return IDSetName }

// NameRejectReason says why a SetName was refused.
type NameRejectReason uint8

const (
	NameIllegal NameRejectReason = iota + 1
	NameTaken
)

// NameRejected is the host's refusal of a SetName request.
type NameRejected struct {
	Reason NameRejectReason `cbor:"1,keyasint"`
}

func (NameRejected) SteadyID() SteadyMsgID { return IDNameRejected }

// Respawn moves the receiving player to the given position.
type Respawn struct {
	Position Vec3 `cbor:"1,keyasint"`
}

func (Respawn) SteadyID() SteadyMsgID { return IDRespawn }

// FastMsgID identifies the variant of a fast message on the wire.
type FastMsgID uint8

const (
	IDPositionUpdate FastMsgID = iota + 1
	IDRotationUpdate
	IDPlayerMove
)

// FastMsg is implemented by all fast message variants.
type FastMsg interface {
	// FastID returns the wire identifier of the variant.
	FastID() FastMsgID
}

// PositionUpdate sets an entity's position.
type PositionUpdate struct {
	Entity   uint64 `cbor:"1,keyasint"`
	Position Vec3   `cbor:"2,keyasint"`
}

func (PositionUpdate) FastID() FastMsgID { return IDPositionUpdate }

// RotationUpdate sets an entity's rotation.
type RotationUpdate struct {
	Entity   uint64 `cbor:"1,keyasint"`
	Rotation Quat   `cbor:"2,keyasint"`
}

func (RotationUpdate) FastID() FastMsgID { return IDRotationUpdate }

// PlayerMove reports a client's own movement to the host.
type PlayerMove struct {
	Session      string `cbor:"1,keyasint"`
	Position     Vec3   `cbor:"2,keyasint"`
	Displacement Vec3   `cbor:"3,keyasint"`
	Rotation     Quat   `cbor:"4,keyasint"`
}

func (PlayerMove) FastID() FastMsgID { return IDPlayerMove }

// HandshakeStep identifies a message of the connection handshake.
type HandshakeStep uint8

const (
	// HandshakeJoinRequest client to host, over TCP, opens the exchange.
	HandshakeJoinRequest HandshakeStep = iota + 1
	// HandshakePleaseConnectUDP host to client, over TCP, carries the fresh
	// session id and asks the client to bind its UDP socket.
	HandshakePleaseConnectUDP
	// HandshakeIConnectedUDP client to host, over UDP, proves the client's
	// datagrams reach the host and exposes its source address.
	HandshakeIConnectedUDP
	// HandshakeYoureReady host to client, over TCP, completes the handshake.
	HandshakeYoureReady
)

// Handshake is one message of the four step connection handshake.
// Session is empty only for HandshakeJoinRequest.
type Handshake struct {
	Step    HandshakeStep `cbor:"1,keyasint"`
	Session string        `cbor:"2,keyasint,omitempty"`
}

// Envelope binds a fast channel payload to its owning session. The host's
// single UDP socket serves every session, so each datagram must say which
// session it belongs to. Exactly one of Handshake and Fast is set.
//
// Src is the observed source address of the datagram. It is filled in by the
// receiving side and never read from the wire, a peer cannot claim an
// address it did not send from.
type Envelope struct {
	Session   string
	Handshake *Handshake
	Fast      FastMsg
	Src       string
}
