package bridge

import "sort"

// Participant maps a pipeline input to the speaker shown in the UI.
type Participant struct {
	InputID string
	Name    string
	Role    string
}

// DefaultSender is used for chat inputs with no registered participant.
var DefaultSender = Participant{Name: "Assistant", Role: "assistant"}

// Participants is built once per bridge and only read afterwards.
type Participants struct {
	byInput map[string]Participant
}

// NewParticipants indexes list by input id. Entries without an input id
// are skipped; missing names and roles fall back to the defaults.
func NewParticipants(list []Participant) *Participants {
	p := &Participants{byInput: make(map[string]Participant, len(list))}
	for _, part := range list {
		if part.InputID == "" {
			continue
		}
		if part.Name == "" {
			part.Name = DefaultSender.Name
		}
		if part.Role == "" {
			part.Role = DefaultSender.Role
		}
		p.byInput[part.InputID] = part
	}
	return p
}

// DefaultParticipants is the classroom layout: two students and a tutor.
func DefaultParticipants() *Participants {
	return NewParticipants([]Participant{
		{InputID: "student1_text", Name: "Student 1", Role: "user"},
		{InputID: "student2_text", Name: "Student 2", Role: "user"},
		{InputID: "tutor_text", Name: "Tutor", Role: "assistant"},
	})
}

// Lookup returns the participant for inputID or DefaultSender.
func (p *Participants) Lookup(inputID string) Participant {
	if part, ok := p.byInput[inputID]; ok {
		return part
	}
	out := DefaultSender
	out.InputID = inputID
	return out
}

// Known reports whether inputID is registered.
func (p *Participants) Known(inputID string) bool {
	_, ok := p.byInput[inputID]
	return ok
}

// InputIDs returns the registered input ids, sorted.
func (p *Participants) InputIDs() []string {
	ids := make([]string, 0, len(p.byInput))
	for id := range p.byInput {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
