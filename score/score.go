// Package score turns external score documents (MusicXML, Standard MIDI
// Files) into the internal Score model. Parsing is all-or-nothing: a
// returned Score always satisfies model.Score.Validate.
package score

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"scjingle/model"
)

// Parse picks a parser from the file extension.
func Parse(path string) (*model.Score, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".musicxml"), strings.HasSuffix(lower, ".xml"):
		return ParseMusicXML(path)
	case strings.HasSuffix(lower, ".mid"), strings.HasSuffix(lower, ".midi"):
		return ParseSMF(path)
	}
	return nil, errors.Errorf("unsupported score format: %v", path)
}

func sortVoiceNames(names []string) {
	sort.Strings(names)
}

// sortMeasureNotes orders every voice's notes by start instant, ties broken
// by ascending pitch, so chord members appear lowest first.
func sortMeasureNotes(s *model.Score) {
	for i := range s.Measures {
		for _, notes := range s.Measures[i].Notes {
			sort.Slice(notes, func(a, b int) bool {
				if notes[a].Start != notes[b].Start {
					return notes[a].Start < notes[b].Start
				}
				return notes[a].Pitch < notes[b].Pitch
			})
		}
	}
}
