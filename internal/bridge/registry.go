package bridge

import "fmt"

// Constructor builds a bridge from options.
type Constructor func(opts Options) Bridge

// Registry maps kinds to constructors.
type Registry struct {
	ctors map[Kind]Constructor
}

// NewRegistry returns a registry holding every built-in kind.
func NewRegistry() *Registry {
	return &Registry{ctors: map[Kind]Constructor{
		KindMicInput:    func(o Options) Bridge { return NewMicInput(o) },
		KindTextInput:   func(o Options) Bridge { return NewTextInput(o) },
		KindSystemLog:   func(o Options) Bridge { return NewSystemLog(o) },
		KindAudioPlayer: func(o Options) Bridge { return NewAudioPlayer(o) },
		KindPromptInput: func(o Options) Bridge { return NewPromptInput(o) },
	}}
}

// New builds a bridge of the given kind.
func (r *Registry) New(kind Kind, opts Options) (Bridge, error) {
	ctor, ok := r.ctors[kind]
	if !ok {
		return nil, fmt.Errorf("no constructor for bridge kind %q", kind)
	}
	return ctor(opts), nil
}

// Build parses kind and builds the bridge.
func (r *Registry) Build(kind string, opts Options) (Bridge, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return r.New(k, opts)
}
