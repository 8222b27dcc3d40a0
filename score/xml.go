package score

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"scjingle/model"
)

// Partwise MusicXML. Only the elements that affect pitch and timing are
// decoded; everything else is skipped.

type xmlDoc struct {
	XMLName xml.Name  `xml:"score-partwise"`
	Parts   []xmlPart `xml:"part"`
}

type xmlPart struct {
	ID       string       `xml:"id,attr"`
	Measures []xmlMeasure `xml:"measure"`
}

// xmlMeasure keeps its children in document order. Order matters: a note's
// start time depends on every note, backup and forward element before it.
type xmlMeasure struct {
	Items []interface{}
}

type xmlAttributes struct {
	Divisions int     `xml:"divisions"`
	Time      xmlTime `xml:"time"`
}

type xmlTime struct {
	Beats    int `xml:"beats"`
	BeatType int `xml:"beat-type"`
}

type xmlSound struct {
	Tempo float64 `xml:"tempo,attr"`
}

type xmlDirection struct {
	Sound xmlSound `xml:"sound"`
}

type xmlBackup struct {
	Duration int `xml:"duration"`
}

type xmlForward struct {
	Duration int `xml:"duration"`
}

type xmlNote struct {
	Pitch    xmlPitch `xml:"pitch"`
	Duration int      `xml:"duration"`
	Voice    int      `xml:"voice"`
	Rest     xml.Name `xml:"rest"`
	Chord    xml.Name `xml:"chord"`
	Grace    xml.Name `xml:"grace"`
}

type xmlPitch struct {
	Step   string  `xml:"step"`
	Alter  float64 `xml:"alter"`
	Octave int     `xml:"octave"`
}

// Semitone converts step/alter/octave to a MIDI-scale pitch value.
func (p *xmlPitch) Semitone() float64 {
	var n int
	switch p.Step {
	case "C":
		n = 0
	case "D":
		n = 2
	case "E":
		n = 4
	case "F":
		n = 5
	case "G":
		n = 7
	case "A":
		n = 9
	case "B":
		n = 11
	}
	return float64(n+(p.Octave+1)*12) + p.Alter
}

func (m *xmlMeasure) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		token, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "attributes":
				var a xmlAttributes
				if err := d.DecodeElement(&a, &t); err != nil {
					return err
				}
				m.Items = append(m.Items, a)
			case "direction":
				var dir xmlDirection
				if err := d.DecodeElement(&dir, &t); err != nil {
					return err
				}
				m.Items = append(m.Items, dir)
			case "sound":
				var snd xmlSound
				if err := d.DecodeElement(&snd, &t); err != nil {
					return err
				}
				m.Items = append(m.Items, snd)
			case "note":
				var n xmlNote
				if err := d.DecodeElement(&n, &t); err != nil {
					return err
				}
				m.Items = append(m.Items, n)
			case "backup":
				var b xmlBackup
				if err := d.DecodeElement(&b, &t); err != nil {
					return err
				}
				m.Items = append(m.Items, b)
			case "forward":
				var f xmlForward
				if err := d.DecodeElement(&f, &t); err != nil {
					return err
				}
				m.Items = append(m.Items, f)
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
	return nil
}

// ParseMusicXML reads a partwise MusicXML document and builds a Score.
// Voices are named "<part id>-V<voice number>". The whole parse fails on a
// malformed document or a score with no voiced notes; a partial model is
// never returned.
func ParseMusicXML(path string) (*model.Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening score")
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	dec.CharsetReader = charset.NewReaderLabel
	var doc xmlDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "malformed MusicXML document")
	}

	return buildScore(&doc)
}

func buildScore(doc *xmlDoc) (*model.Score, error) {
	numMeasures := 0
	for _, p := range doc.Parts {
		if len(p.Measures) > numMeasures {
			numMeasures = len(p.Measures)
		}
	}
	if numMeasures == 0 {
		return nil, model.ErrEmptyScore
	}

	s := &model.Score{
		Measures:        make([]model.Measure, numMeasures),
		BeatsPerMeasure: 4,
		Bpm:             model.DefaultBpm,
	}
	for i := range s.Measures {
		s.Measures[i].Notes = make(map[string][]model.Note)
	}

	voiceSeen := make(map[string]bool)
	for _, part := range doc.Parts {
		divisions := 1
		for measIdx, meas := range part.Measures {
			var cursor int    // in divisions from measure start
			var lastStart int // start of the most recent non-chord note
			for _, item := range meas.Items {
				switch v := item.(type) {
				case xmlAttributes:
					if v.Divisions > 0 {
						divisions = v.Divisions
					}
					if v.Time.Beats > 0 && v.Time.BeatType > 0 {
						s.BeatsPerMeasure = float64(v.Time.Beats) * 4 / float64(v.Time.BeatType)
					}
				case xmlDirection:
					if v.Sound.Tempo > 0 {
						s.Bpm = int(v.Sound.Tempo)
					}
				case xmlSound:
					if v.Tempo > 0 {
						s.Bpm = int(v.Tempo)
					}
				case xmlBackup:
					cursor -= v.Duration
				case xmlForward:
					cursor += v.Duration
				case xmlNote:
					if v.Grace.Local != "" {
						continue
					}
					start := cursor
					if v.Chord.Local != "" {
						start = lastStart
					} else {
						lastStart = cursor
						cursor += v.Duration
					}
					if v.Rest.Local != "" {
						continue
					}
					voiceNum := v.Voice
					if voiceNum == 0 {
						voiceNum = 1
					}
					name := part.ID + "-V" + strconv.Itoa(voiceNum)
					voiceSeen[name] = true
					note := model.Note{
						Pitch:    v.Pitch.Semitone(),
						Start:    float64(start) / float64(divisions),
						Duration: float64(v.Duration) / float64(divisions),
					}
					notes := s.Measures[measIdx].Notes[name]
					s.Measures[measIdx].Notes[name] = append(notes, note)
				}
			}
		}
	}

	if len(voiceSeen) == 0 {
		return nil, model.ErrEmptyScore
	}
	for name := range voiceSeen {
		s.VoiceNames = append(s.VoiceNames, name)
	}
	sortVoiceNames(s.VoiceNames)
	sortMeasureNotes(s)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
