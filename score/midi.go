package score

import (
	"bytes"
	"fmt"
	"math"
	"os"

	goerrors "errors"

	"gitlab.com/gomidi/midi/v2/smf"

	"scjingle/model"
)

// readSMF parses a Standard MIDI File from disk.
func readSMF(path string) (s *smf.SMF, e error) {
	// the smf reader panics on some malformed files
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			s, e = nil, fmt.Errorf("error parsing midi file... %v", r)
		}
	}()

	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading midi file... %v", err)
	}
	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, fmt.Errorf("error parsing midi file... %v", err)
	}
	return res, nil
}

// ParseSMF imports a Standard MIDI File as a score. Each track containing
// note events becomes one voice, named after its track-name meta event when
// present ("Track N" otherwise). Measures are cut from the first meta time
// signature (4/4 when absent).
func ParseSMF(path string) (*model.Score, error) {
	mf, err := readSMF(path)
	if err != nil {
		return nil, err
	}

	mt, ok := mf.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, goerrors.New("only metric-ticks midi files are supported")
	}
	tpq := float64(mt.Ticks4th())

	beatsPerMeasure := 4.0
	bpm := model.DefaultBpm

	type voiceNotes struct {
		name  string
		notes []timedNote
	}
	var voices []voiceNotes
	maxBeat := 0.0

	for trackIdx, track := range mf.Tracks {
		name := fmt.Sprintf("Track %v", trackIdx+1)
		pressed := make(map[uint8]float64)
		var notes []timedNote
		var absTicks int64
		for _, event := range track {
			absTicks += int64(event.Delta)
			beat := float64(absTicks) / tpq
			var channel, key, velocity uint8
			var text string
			var num, denom uint8
			var tempo float64
			switch {
			case event.Message.GetMetaTrackName(&text):
				if text != "" {
					name = text
				}
			case event.Message.GetMetaMeter(&num, &denom):
				if num > 0 && denom > 0 {
					beatsPerMeasure = float64(num) * 4 / float64(denom)
				}
			case event.Message.GetMetaTempo(&tempo):
				if tempo > 0 {
					bpm = int(tempo)
				}
			case event.Message.GetNoteStart(&channel, &key, &velocity):
				pressed[key] = beat
			case event.Message.GetNoteEnd(&channel, &key):
				start, ok := pressed[key]
				if !ok {
					continue
				}
				delete(pressed, key)
				notes = append(notes, timedNote{
					pitch:    float64(key),
					start:    start,
					duration: beat - start,
				})
				if beat > maxBeat {
					maxBeat = beat
				}
			}
		}
		if len(notes) > 0 {
			voices = append(voices, voiceNotes{name: name, notes: notes})
		}
	}

	if len(voices) == 0 || maxBeat == 0 {
		return nil, model.ErrEmptyScore
	}

	numMeasures := int(math.Ceil(maxBeat / beatsPerMeasure))
	s := &model.Score{
		Measures:        make([]model.Measure, numMeasures),
		BeatsPerMeasure: beatsPerMeasure,
		Bpm:             bpm,
	}
	for i := range s.Measures {
		s.Measures[i].Notes = make(map[string][]model.Note)
	}

	seen := make(map[string]bool)
	for _, v := range voices {
		name := v.name
		// two tracks can carry the same name; keep voices distinct
		for i := 2; seen[name]; i++ {
			name = fmt.Sprintf("%v (%v)", v.name, i)
		}
		seen[name] = true
		s.VoiceNames = append(s.VoiceNames, name)
		for _, n := range v.notes {
			measIdx := int(n.start / beatsPerMeasure)
			if measIdx >= numMeasures {
				measIdx = numMeasures - 1
			}
			note := model.Note{
				Pitch:    n.pitch,
				Start:    n.start - float64(measIdx)*beatsPerMeasure,
				Duration: n.duration,
			}
			s.Measures[measIdx].Notes[name] = append(s.Measures[measIdx].Notes[name], note)
		}
	}

	sortVoiceNames(s.VoiceNames)
	sortMeasureNotes(s)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

type timedNote struct {
	pitch    float64
	start    float64
	duration float64
}
