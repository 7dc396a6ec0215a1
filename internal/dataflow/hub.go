package dataflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type endpoint struct {
	node string
	port string
}

func parseEndpoint(s string) (endpoint, error) {
	node, port, ok := strings.Cut(s, "/")
	if !ok || node == "" || port == "" {
		return endpoint{}, fmt.Errorf("invalid endpoint %q, want node/port", s)
	}
	return endpoint{node: node, port: port}, nil
}

// Hub is an in-process pipeline: it routes node outputs to node inputs.
// It backs single-process deployments and tests.
type Hub struct {
	mu           sync.Mutex
	nodes        map[string]*memNode
	routes       map[endpoint][]endpoint
	buffer       int
	deliverLimit time.Duration
}

// NewHub creates a hub whose node inboxes hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		nodes:        make(map[string]*memNode),
		routes:       make(map[endpoint][]endpoint),
		buffer:       buffer,
		deliverLimit: time.Second,
	}
}

// Connect routes "node/output" to "node/input".
func (h *Hub) Connect(src, dst string) error {
	from, err := parseEndpoint(src)
	if err != nil {
		return err
	}
	to, err := parseEndpoint(dst)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[from] = append(h.routes[from], to)
	return nil
}

// MustConnect is Connect for static wiring.
func (h *Hub) MustConnect(src, dst string) {
	if err := h.Connect(src, dst); err != nil {
		panic(err)
	}
}

// Dial registers a node. Only one live node per id is allowed.
func (h *Hub) Dial(ctx context.Context, reg Registration) (Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.nodes[reg.NodeID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, reg.NodeID)
	}
	n := &memNode{
		hub:    h,
		reg:    reg,
		inbox:  make(chan Event, h.buffer),
		closed: make(chan struct{}),
	}
	h.nodes[reg.NodeID] = n
	return n, nil
}

// Registered reports whether a live node has id.
func (h *Hub) Registered(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.nodes[id]
	return ok
}

// Inject delivers data to a node input as if an upstream node sent it.
func (h *Hub) Inject(nodeID, inputID string, data Data, params Params) error {
	h.mu.Lock()
	n, ok := h.nodes[nodeID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("dataflow: node %s not registered", nodeID)
	}
	return n.push(Event{Type: EventInput, ID: inputID, Data: data, Params: params}, h.deliverLimit)
}

// Stop asks a node to shut down.
func (h *Hub) Stop(nodeID string) error {
	h.mu.Lock()
	n, ok := h.nodes[nodeID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("dataflow: node %s not registered", nodeID)
	}
	return n.push(Event{Type: EventStop}, h.deliverLimit)
}

func (h *Hub) deliver(from endpoint, data Data, params Params) error {
	h.mu.Lock()
	targets := make([]*memNode, 0, len(h.routes[from]))
	ports := make([]string, 0, len(h.routes[from]))
	for _, to := range h.routes[from] {
		if n, ok := h.nodes[to.node]; ok {
			targets = append(targets, n)
			ports = append(ports, to.port)
		}
	}
	h.mu.Unlock()

	for i, n := range targets {
		ev := Event{Type: EventInput, ID: ports[i], Data: data, Params: copyParams(params)}
		if err := n.push(ev, h.deliverLimit); err != nil {
			return fmt.Errorf("deliver %s/%s -> %s/%s: %w", from.node, from.port, n.reg.NodeID, ports[i], err)
		}
	}
	return nil
}

func (h *Hub) remove(n *memNode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.nodes[n.reg.NodeID] == n {
		delete(h.nodes, n.reg.NodeID)
	}
}

func copyParams(p Params) Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type memNode struct {
	hub       *Hub
	reg       Registration
	inbox     chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func (n *memNode) ID() string { return n.reg.NodeID }

func (n *memNode) Recv(timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-n.closed:
		return Event{}, ErrClosed
	case ev := <-n.inbox:
		return ev, nil
	case <-timer.C:
		return Event{}, ErrTimeout
	}
}

func (n *memNode) Send(outputID string, data Data, params Params) error {
	select {
	case <-n.closed:
		return ErrClosed
	default:
	}
	if !n.reg.HasOutput(outputID) {
		return fmt.Errorf("%w: %s/%s", ErrUnknownOutput, n.reg.NodeID, outputID)
	}
	if err := data.Validate(); err != nil {
		return err
	}
	return n.hub.deliver(endpoint{node: n.reg.NodeID, port: outputID}, data, params)
}

func (n *memNode) Close() error {
	n.closeOnce.Do(func() {
		close(n.closed)
		n.hub.remove(n)
	})
	return nil
}

func (n *memNode) push(ev Event, limit time.Duration) error {
	select {
	case n.inbox <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case n.inbox <- ev:
		return nil
	case <-n.closed:
		return ErrClosed
	case <-timer.C:
		return ErrBackpressure
	}
}
