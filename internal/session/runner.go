package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/metrics"
)

// ControllerRegistration declares the controller's ports.
func ControllerRegistration(nodeID string) dataflow.Registration {
	if nodeID == "" {
		nodeID = ControllerNodeID
	}
	return dataflow.Registration{
		NodeID:  nodeID,
		Inputs:  []string{InputControl, InputAudioComplete, InputAnalysisComplete},
		Outputs: []string{OutputControl, OutputStatus, OutputLog},
	}
}

// ContextRegistration declares the context manager's ports.
func ContextRegistration(nodeID string) dataflow.Registration {
	if nodeID == "" {
		nodeID = ContextNodeID
	}
	return dataflow.Registration{
		NodeID:  nodeID,
		Inputs:  []string{InputTopic, InputUserText, InputTextInput, InputASRText, InputReset, InputControl},
		Outputs: []string{OutputUserText, OutputStatus},
	}
}

// RunController serves c on node until ctx is done or the pipeline stops.
func RunController(ctx context.Context, node dataflow.Node, c *Controller, logger zerolog.Logger) error {
	return dataflow.Serve(ctx, node, logger, func(ev dataflow.Event) []Output {
		switch ev.ID {
		case InputAudioComplete:
			return c.Handle(CmdAudioComplete)
		case InputAnalysisComplete:
			return c.Handle(CmdAnalysisComplete)
		case InputControl:
			cmd, ok := CommandFromData(ev.Data)
			if !ok {
				metrics.MalformedInputs.WithLabelValues(node.ID(), ev.ID).Inc()
				logger.Debug().Str("input", ev.ID).Msg("Ignoring unrecognized command")
				return nil
			}
			return c.Handle(cmd)
		default:
			logger.Debug().Str("input", ev.ID).Msg("Ignoring unknown input")
			return nil
		}
	})
}

// RunContext serves m on node until ctx is done or the pipeline stops.
func RunContext(ctx context.Context, node dataflow.Node, m *ContextManager, logger zerolog.Logger) error {
	return dataflow.Serve(ctx, node, logger, func(ev dataflow.Event) []Output {
		return m.Handle(ev.ID, ev.Data, ev.Params.Metadata())
	})
}
