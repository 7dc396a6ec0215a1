package config

import (
	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/bridge"
	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

// ParticipantRegistry builds the bridge participant registry.
func (c *Config) ParticipantRegistry() *bridge.Participants {
	list := make([]bridge.Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		list = append(list, bridge.Participant{InputID: p.InputID, Name: p.Name, Role: p.Role})
	}
	return bridge.NewParticipants(list)
}

// QueueConfigs returns the bridge queue table with configured overrides
// applied. Zero fields keep the default.
func (c *Config) QueueConfigs() map[string]bridge.QueueConfig {
	queues := bridge.DefaultQueues()
	for name, s := range c.Bridge.Queues {
		q := queues[name]
		if s.Size > 0 {
			q.Size = s.Size
		}
		if s.Policy != "" {
			q.Policy = bridge.Policy(s.Policy)
		}
		if s.BlockTimeout > 0 {
			q.BlockTimeout = s.BlockTimeout
		}
		queues[name] = q
	}
	return queues
}

// BridgeOptions builds the options for a bridge of kind.
func (c *Config) BridgeOptions(kind bridge.Kind, dialer dataflow.Dialer, logger zerolog.Logger) bridge.Options {
	return bridge.Options{
		NodeID:           c.Bridge.Nodes[string(kind)],
		Dialer:           dialer,
		Logger:           logger,
		ConnectTimeout:   c.Bridge.ConnectTimeout,
		ConnectPoll:      c.Bridge.ConnectPoll,
		RecvTimeout:      c.Bridge.RecvTimeout,
		SubscriberBuffer: c.Bridge.SubscriberBuffer,
		Queues:           c.QueueConfigs(),
		Participants:     c.ParticipantRegistry(),
		ParticipantID:    c.Bridge.ParticipantID,
		MinLogLevel:      model.ParseLogLevel(c.Bridge.MinLogLevel),
		LogHistory:       c.Bridge.LogHistory,
	}
}
