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
This package contains a reference client. It joins a host, acknowledges the
entity load sequence, then streams movement on the fast channel while
printing chat and movement it hears about.
*/
package main

import (
	"os"
	"os/signal"
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
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("tcp-port", config.DefaultTCPPort)
	v.SetDefault("udp-port", config.DefaultUDPPort)
	v.SetDefault("latency", 0)
	v.SetDefault("log-level", "info")
	v.SetDefault("name", "player")
	v.SetDefault("move-interval", 50)

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

// waitLoaded acknowledges entities until the host says the load is done,
// returning the entities received along the way.
func waitLoaded(c *lan.ClientConn) ([]uint64, error) {
	var entities []uint64
	for {
		d, ok, err := c.RecvSteady()
		if err != nil {
			return nil, err
		}
		if !ok {
			time.Sleep(config.HandshakePollInterval * time.Millisecond)
			continue
		}
		if err := channelinterface.AckSteady(c, d); err != nil {
			return nil, err
		}
		switch m := d.Msg.(type) {
		case messages.InitialiseEntity:
			entities = append(entities, m.Entity)
		case messages.FinaliseLoad:
			return entities, nil
		default:
			logging.Debugf("unexpected %T during load", m)
		}
	}
}

func main() {
	v := loadConfig()
	setupLogging(v)
	defer logging.Sync()
	config.LatencySend = v.GetInt("latency")

	c, err := lan.Dial(v.GetString("host"), v.GetInt("tcp-port"), v.GetInt("udp-port"))
	if err != nil {
		logging.Errorf("joining host: %v", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()
	logging.Infof("joined as session %v", c.SessionID())

	entities, err := waitLoaded(c)
	if err != nil {
		logging.Errorf("load sequence failed: %v", err)
		os.Exit(1)
	}
	logging.Infof("loaded %v entities", len(entities))

	if err := channelinterface.SendSteady(c,
		messages.SetName{Session: c.SessionID(), Name: v.GetString("name")}); err != nil {
		logging.Errorf("setting name: %v", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	move := time.NewTicker(time.Duration(v.GetInt("move-interval")) * time.Millisecond)
	defer move.Stop()
	var pos messages.Vec3

	for c.IsAlive() {
		select {
		case <-sig:
			logging.Info("leaving")
			return
		case <-move.C:
			pos[0]++
			if err := c.SendFast(messages.PlayerMove{
				Session: c.SessionID(), Position: pos}); err != nil {
				logging.Debugf("fast send failed: %v", err)
			}
		default:
		}

		if d, ok, err := c.RecvSteady(); err != nil {
			logging.Infof("steady channel closed: %v", err)
			return
		} else if ok {
			if err := channelinterface.AckSteady(c, d); err != nil {
				return
			}
			switch m := d.Msg.(type) {
			case messages.Chat:
				logging.Infof("[chat] %v: %v", m.Session, m.Text)
			case messages.SetName:
				logging.Infof("session %v is now %v", m.Session, m.Name)
			case messages.NameRejected:
				logging.Warningf("name rejected: %v", m.Reason)
			case messages.Respawn:
				pos = m.Position
			case messages.RemoveEntity:
				logging.Infof("entity %v removed", m.Entity)
			}
		}

		if m, ok := c.RecvFast(); ok {
			if mv, isMove := m.(messages.PlayerMove); isMove {
				logging.Debugf("session %v at %v", mv.Session, mv.Position)
			}
		} else {
			time.Sleep(config.HandshakePollInterval * time.Millisecond)
		}
	}
}
