package bridge

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

// Options configures a bridge. Zero values pick the defaults.
type Options struct {
	NodeID string
	Dialer dataflow.Dialer
	Logger zerolog.Logger

	ConnectTimeout time.Duration
	ConnectPoll    time.Duration
	RecvTimeout    time.Duration

	// SubscriberBuffer bounds each subscription's event queue.
	SubscriberBuffer int
	// Queues overrides DefaultQueues per queue name.
	Queues map[string]QueueConfig

	// Participants is used by the text-input bridge.
	Participants *Participants
	// ParticipantID tags outbound mic audio.
	ParticipantID string
	// MinLogLevel and LogHistory configure the system-log bridge.
	MinLogLevel model.LogLevel
	LogHistory  int
}

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultConnectPoll    = 50 * time.Millisecond
	DefaultRecvTimeout    = 100 * time.Millisecond
	DefaultLogHistory     = 500
)

func (o Options) withDefaults(kind Kind) Options {
	if o.NodeID == "" {
		o.NodeID = kind.DefaultNodeID()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ConnectPoll <= 0 {
		o.ConnectPoll = DefaultConnectPoll
	}
	if o.RecvTimeout <= 0 {
		o.RecvTimeout = DefaultRecvTimeout
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = DefaultQueues()[QueueEvents].Size
	}
	if o.Participants == nil {
		o.Participants = DefaultParticipants()
	}
	if o.MinLogLevel == "" {
		o.MinLogLevel = model.LevelDebug
	}
	if o.LogHistory <= 0 {
		o.LogHistory = DefaultLogHistory
	}
	return o
}

func (o Options) queue(name string) QueueConfig {
	if cfg, ok := o.Queues[name]; ok {
		return cfg
	}
	return DefaultQueues()[name]
}
