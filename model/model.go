package model

import "errors"

// NoVoice is the sentinel voice name meaning a channel has no source
// voice assigned and therefore emits nothing.
const NoVoice = "No Voice"

// Channel identifies one of the two mono output channels on the device.
// All per-channel state (selected voice, chord index, resolved stream) is
// kept in arrays indexed by Channel so left and right share one code path.
type Channel int

const (
	Left Channel = iota
	Right

	NumChannels = 2
)

func (c Channel) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "invalid"
}

// Valid reports whether c is one of the defined channels.
func (c Channel) Valid() bool {
	return c >= Left && c < NumChannels
}

// Note is a single pitched event within a measure. Pitch is a semitone
// value on the MIDI scale (60 = middle C). Start and Duration are in beats
// relative to the start of the containing measure. Notes are never mutated
// after parsing.
type Note struct {
	Pitch    float64
	Start    float64
	Duration float64
}

// Measure holds, per voice name, the notes that start inside the measure's
// time window. A voice may have no notes in a given measure. Notes sharing
// a start instant within one voice form a chord.
type Measure struct {
	Notes map[string][]Note
}

// Score is a parsed score: measures in document order (indices are implicit
// and contiguous from 0) plus the set of voice names appearing anywhere in
// the score, in stable sorted order. BeatsPerMeasure comes from the score's
// time signature (4 when the score declares none) and Bpm from its tempo
// marking (DefaultBpm when absent).
type Score struct {
	Measures        []Measure
	VoiceNames      []string
	BeatsPerMeasure float64
	Bpm             int
}

// DefaultBpm is used when a score carries no tempo marking.
const DefaultBpm = 100

var (
	ErrEmptyScore   = errors.New("score contains no measures or no notes")
	ErrUnknownVoice = errors.New("voice not present in score")
)

// Validate checks the structural invariants a parser must guarantee: at
// least one measure, at least one voice, and every voice referenced by a
// measure present in VoiceNames.
func (s *Score) Validate() error {
	if len(s.Measures) == 0 || len(s.VoiceNames) == 0 {
		return ErrEmptyScore
	}
	names := make(map[string]bool, len(s.VoiceNames))
	for _, v := range s.VoiceNames {
		names[v] = true
	}
	for _, m := range s.Measures {
		for v := range m.Notes {
			if !names[v] {
				return ErrUnknownVoice
			}
		}
	}
	return nil
}

// HasVoice reports whether name is one of the score's voices.
func (s *Score) HasVoice(name string) bool {
	for _, v := range s.VoiceNames {
		if v == name {
			return true
		}
	}
	return false
}
