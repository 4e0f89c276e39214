package model

// ParticipantFilter selects events by participant. It is either a Single id
// or Many ids; loosely shaped query input is normalized into one of them.
type ParticipantFilter interface {
	IDs() []string
	isParticipantFilter()
}

type Single string

func (s Single) IDs() []string { return []string{string(s)} }
func (Single) isParticipantFilter() {}

type Many []string

func (m Many) IDs() []string { return append([]string(nil), m...) }
func (Many) isParticipantFilter() {}
