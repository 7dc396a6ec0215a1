package dataflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/metrics"
)

// ServeRecvTimeout bounds each Recv in Serve so ctx is observed promptly.
const ServeRecvTimeout = 100 * time.Millisecond

// Output is one value a node writes to the pipeline.
type Output struct {
	Port   string
	Data   Data
	Params Params
}

// HandlerFunc maps one input event to the outputs it produces.
type HandlerFunc func(Event) []Output

// Serve is the single-goroutine receive loop for pipeline-side nodes. It
// returns nil when ctx is done or the pipeline stops the node, and an error
// when the pipeline reports one or the node fails. It does not close node.
func Serve(ctx context.Context, node Node, logger zerolog.Logger, handle HandlerFunc) error {
	logger = logger.With().Str("node", node.ID()).Logger()
	logger.Info().Msg("Node serving")
	defer logger.Info().Msg("Node stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ev, err := node.Recv(ServeRecvTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return fmt.Errorf("receive on %s: %w", node.ID(), err)
		}

		switch ev.Type {
		case EventStop:
			return nil
		case EventError:
			if ev.Err == nil {
				ev.Err = errors.New("unspecified")
			}
			return fmt.Errorf("pipeline error on %s: %w", node.ID(), ev.Err)
		case EventInputClosed:
			logger.Debug().Str("input", ev.ID).Msg("Input closed")
			continue
		}

		for _, out := range handle(ev) {
			if err := node.Send(out.Port, out.Data, out.Params); err != nil {
				logger.Warn().Err(err).Str("output", out.Port).Msg("Send failed")
				continue
			}
			metrics.BridgeOutputs.WithLabelValues(node.ID(), out.Port).Inc()
		}
	}
}
