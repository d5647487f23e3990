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

package channelinterface

import (
	"time"

	"github.com/tcrain/simnet/config"
	"github.com/tcrain/simnet/transport/messages"
)

// SendSteady sends a steady message without a consume acknowledgment.
func SendSteady(conn Connection, m messages.SteadyMsg) error {
	return conn.SendSteady(messages.SteadyMsgData{Msg: m})
}

// SendSteadyAwaitConsume sends a steady message tagged with a fresh packet
// id, then polls the inbound queue until the peer echoes Consume with that
// id. The wait confirms the peer's application processed the message, not
// merely that the socket accepted it. Messages popped while waiting are
// requeued so the application still sees them.
//
// The wait is a plain poll loop that sleeps config.ConsumePollInterval
// between attempts and gives up with ErrConsumeTimeout after
// config.ConsumeAckTimeout. A Consume carrying any other id leaves the wait
// in place.
func SendSteadyAwaitConsume(conn Connection, m messages.SteadyMsg) error {
	d := messages.SteadyMsgData{Msg: m, PacketID: messages.NewPacketID()}
	if err := conn.SendSteady(d); err != nil {
		return err
	}
	deadline := time.Now().Add(config.ConsumeAckTimeout * time.Millisecond)
	for {
		got, ok, err := conn.RecvSteady()
		if err != nil {
			return err
		}
		if ok {
			if c, isConsume := got.Msg.(messages.Consume); isConsume && c.PacketID == d.PacketID {
				return nil
			}
			// not ours, put it back for the application
			conn.RequeueSteady(got)
		}
		time.Sleep(config.ConsumePollInterval * time.Millisecond)
		if time.Now().After(deadline) {
			return ErrConsumeTimeout
		}
	}
}

// AckSteady echoes the consume acknowledgment for a received message. It is
// a no-op for messages whose sender did not request one. The Consume itself
// is never acknowledged, otherwise the acks would recurse forever.
func AckSteady(conn Connection, d messages.SteadyMsgData) error {
	if d.PacketID == "" {
		return nil
	}
	return conn.SendSteady(messages.SteadyMsgData{Msg: messages.Consume{PacketID: d.PacketID}})
}
