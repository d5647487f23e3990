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
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tagged variants are encoded as a small wire struct holding the variant id
// and the CBOR body of the concrete type. Unknown fields in a body are
// ignored on decode, which keeps the encoding tolerant of additions.

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

type steadyWire struct {
	ID       SteadyMsgID     `cbor:"1,keyasint"`
	PacketID string          `cbor:"2,keyasint,omitempty"`
	Body     cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

type fastWire struct {
	ID   FastMsgID       `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

type envelopeWire struct {
	Session   string     `cbor:"1,keyasint"`
	Handshake *Handshake `cbor:"2,keyasint,omitempty"`
	Fast      *fastWire  `cbor:"3,keyasint,omitempty"`
}

// EncodeSteady serializes a steady message and its packet id.
func EncodeSteady(d SteadyMsgData) ([]byte, error) {
	if d.Msg == nil {
		return nil, fmt.Errorf("steady message is nil")
	}
	body, err := encMode.Marshal(d.Msg)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(steadyWire{ID: d.Msg.SteadyID(), PacketID: d.PacketID, Body: body})
}

// DecodeSteady deserializes a steady message produced by EncodeSteady.
func DecodeSteady(buff []byte) (SteadyMsgData, error) {
	var w steadyWire
	if err := decMode.Unmarshal(buff, &w); err != nil {
		return SteadyMsgData{}, err
	}
	msg, err := decodeSteadyBody(w.ID, w.Body)
	if err != nil {
		return SteadyMsgData{}, err
	}
	return SteadyMsgData{Msg: msg, PacketID: w.PacketID}, nil
}

func decodeSteadyBody(id SteadyMsgID, body cbor.RawMessage) (SteadyMsg, error) {
	switch id {
	case IDConsume:
		var m Consume
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDKeepAlive:
		var m KeepAlive
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDPing:
		var m Ping
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDInitialiseEntity:
		var m InitialiseEntity
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDRemoveEntity:
		var m RemoveEntity
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDFinaliseLoad:
		var m FinaliseLoad
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDChat:
		var m Chat
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDSetName:
		var m SetName
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDNameRejected:
		var m NameRejected
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDRespawn:
		var m Respawn
		err := decMode.Unmarshal(body, &m)
		return m, err
	default:
		return nil, fmt.Errorf("unknown steady message id %d", id)
	}
}

func encodeFastWire(m FastMsg) (*fastWire, error) {
	if m == nil {
		return nil, fmt.Errorf("fast message is nil")
	}
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &fastWire{ID: m.FastID(), Body: body}, nil
}

func decodeFastBody(id FastMsgID, body cbor.RawMessage) (FastMsg, error) {
	switch id {
	case IDPositionUpdate:
		var m PositionUpdate
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDRotationUpdate:
		var m RotationUpdate
		err := decMode.Unmarshal(body, &m)
		return m, err
	case IDPlayerMove:
		var m PlayerMove
		err := decMode.Unmarshal(body, &m)
		return m, err
	default:
		return nil, fmt.Errorf("unknown fast message id %d", id)
	}
}

// EncodeHandshake serializes a handshake message for the steady channel.
// Handshake messages on the fast channel travel inside an Envelope instead.
func EncodeHandshake(h Handshake) ([]byte, error) {
	return encMode.Marshal(h)
}

// DecodeHandshake deserializes a handshake message produced by
// EncodeHandshake.
func DecodeHandshake(buff []byte) (Handshake, error) {
	var h Handshake
	if err := decMode.Unmarshal(buff, &h); err != nil {
		return Handshake{}, err
	}
	if h.Step < HandshakeJoinRequest || h.Step > HandshakeYoureReady {
		return Handshake{}, fmt.Errorf("unknown handshake step %d", h.Step)
	}
	return h, nil
}

// EncodeEnvelope serializes an envelope for the fast channel. The observed
// source address is deliberately not part of the wire format.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	w := envelopeWire{Session: env.Session, Handshake: env.Handshake}
	if env.Fast != nil {
		fw, err := encodeFastWire(env.Fast)
		if err != nil {
			return nil, err
		}
		w.Fast = fw
	}
	if w.Handshake == nil && w.Fast == nil {
		return nil, fmt.Errorf("envelope carries no payload")
	}
	return encMode.Marshal(w)
}

// DecodeEnvelope deserializes an envelope produced by EncodeEnvelope.
// The caller is expected to fill in Src from the datagram's source address.
func DecodeEnvelope(buff []byte) (Envelope, error) {
	var w envelopeWire
	if err := decMode.Unmarshal(buff, &w); err != nil {
		return Envelope{}, err
	}
	env := Envelope{Session: w.Session, Handshake: w.Handshake}
	if w.Fast != nil {
		m, err := decodeFastBody(w.Fast.ID, w.Fast.Body)
		if err != nil {
			return Envelope{}, err
		}
		env.Fast = m
	}
	return env, nil
}
