// Package metrics holds the prometheus collectors for bridges and pipeline nodes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueueDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorbridge_queue_dropped_total",
			Help: "Items dropped because a bounded queue was full",
		},
		[]string{"node", "queue"},
	)

	BridgeStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorbridge_bridge_state_changes_total",
			Help: "Bridge lifecycle state transitions",
		},
		[]string{"node", "state"},
	)

	BridgeInputs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorbridge_bridge_inputs_total",
			Help: "Pipeline inputs received by a bridge worker",
		},
		[]string{"node", "input"},
	)

	BridgeOutputs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorbridge_bridge_outputs_total",
			Help: "Outputs written to the pipeline by a bridge worker or node",
		},
		[]string{"node", "output"},
	)

	MalformedInputs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorbridge_malformed_inputs_total",
			Help: "Inputs dropped because they could not be parsed",
		},
		[]string{"node", "input"},
	)

	ControllerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorbridge_controller_transitions_total",
			Help: "Session controller state transitions",
		},
		[]string{"from", "to"},
	)

	ContextForwards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutorbridge_context_forwards_total",
			Help: "User utterances forwarded to the language model",
		},
	)

	RecorderWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorbridge_recorder_writes_total",
			Help: "Rows written by the recorder node",
		},
		[]string{"table"},
	)

	CaptureChunksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutorbridge_capture_chunks_dropped_total",
			Help: "Audio chunks dropped because the capture queue was full",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
