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
This package contains a reference host. It accepts LAN clients, walks each
one through the entity load sequence on the steady channel, then relays chat
and movement between the connected clients.
*/
package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tcrain/simnet/config"
	"github.com/tcrain/simnet/transport/channelinterface"
	"github.com/tcrain/simnet/transport/lan"
	"github.com/tcrain/simnet/transport/logging"
	"github.com/tcrain/simnet/transport/messages"
)

func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("tcp-port", config.DefaultTCPPort)
	v.SetDefault("udp-port", config.DefaultUDPPort)
	v.SetDefault("latency", 0)
	v.SetDefault("log-level", "info")
	v.SetDefault("entities", 3)

	v.SetConfigName("simnet")
	v.AddConfigPath(".")
	v.SetEnvPrefix("simnet")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logging.Errorf("reading config file: %v", err)
			os.Exit(1)
		}
	}
	return v
}

func setupLogging(v *viper.Viper) {
	cfg := zap.NewDevelopmentConfig()
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		logging.Errorf("bad log level %q: %v", v.GetString("log-level"), err)
		os.Exit(1)
	}
	cfg.Level = lvl
	logger, err := cfg.Build()
	if err != nil {
		logging.Errorf("building logger: %v", err)
		os.Exit(1)
	}
	logging.SetLogger(logger)
}

// host relays between connected sessions and owns the entity id space.
type host struct {
	mutex sync.RWMutex
	conns map[string]*lan.Conn
	ids   messages.EntityIDSource
}

func (h *host) add(c *lan.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.conns[c.SessionID()] = c
}

func (h *host) remove(id string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.conns, id)
}

// broadcastSteady sends m to every session except the originator.
func (h *host) broadcastSteady(from string, m messages.SteadyMsg) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for id, c := range h.conns {
		if id == from {
			continue
		}
		if err := channelinterface.SendSteady(c, m); err != nil {
			logging.Warningf("relay to session %v failed: %v", id, err)
		}
	}
}

// broadcastFast sends m to every session except the originator, drops are
// acceptable here.
func (h *host) broadcastFast(from string, m messages.FastMsg) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for id, c := range h.conns {
		if id == from {
			continue
		}
		_ = c.SendFast(m)
	}
}

// serve runs the load sequence and then the relay loop for one session.
func (h *host) serve(c *lan.Conn, entities int) {
	id := c.SessionID()
	defer func() {
		h.remove(id)
		_ = c.Close()
		logging.Infof("session %v gone", id)
	}()

	// every entity must be acknowledged before the next one goes out
	for i := 0; i < entities; i++ {
		ent := messages.InitialiseEntity{Entity: h.ids.Next()}
		if err := channelinterface.SendSteadyAwaitConsume(c, ent); err != nil {
			logging.Warningf("session %v dropped during load: %v", id, err)
			return
		}
	}
	if err := channelinterface.SendSteadyAwaitConsume(c, messages.FinaliseLoad{}); err != nil {
		logging.Warningf("session %v never finished loading: %v", id, err)
		return
	}
	h.add(c)
	logging.Infof("session %v loaded", id)

	for c.IsAlive() {
		progressed := false
		if d, ok, err := c.RecvSteady(); err != nil {
			return
		} else if ok {
			progressed = true
			if err := channelinterface.AckSteady(c, d); err != nil {
				return
			}
			switch m := d.Msg.(type) {
			case messages.Chat:
				h.broadcastSteady(id, m)
			case messages.SetName:
				h.broadcastSteady(id, m)
			case messages.Ping:
				_ = channelinterface.SendSteady(c, messages.Ping{})
			case messages.KeepAlive:
			default:
				logging.Debugf("session %v sent unhandled %T", id, m)
			}
		}
		if m, ok := c.RecvFast(); ok {
			progressed = true
			if mv, isMove := m.(messages.PlayerMove); isMove {
				h.broadcastFast(id, mv)
			}
		}
		if !progressed {
			time.Sleep(config.HandshakePollInterval * time.Millisecond)
		}
	}
}

func main() {
	v := loadConfig()
	setupLogging(v)
	defer logging.Sync()
	config.LatencySend = v.GetInt("latency")

	l, err := lan.NewListener(v.GetString("host"), v.GetInt("tcp-port"), v.GetInt("udp-port"))
	if err != nil {
		logging.Errorf("starting listener: %v", err)
		os.Exit(1)
	}

	h := &host{conns: make(map[string]*lan.Conn)}
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				if _, ok := err.(*channelinterface.HandshakeError); ok {
					logging.Warningf("rejecting client: %v", err)
					continue
				}
				return
			}
			go h.serve(c, v.GetInt("entities"))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logging.Info("shutting down")
	_ = l.Close()
}
