// Package project persists an ordered set of compositions and their
// selection state to a YAML file, mirroring the jingle list the device can
// hold (at most jingle.MaxNumComps entries).
package project

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"scjingle/composition"
	"scjingle/jingle"
	"scjingle/model"
)

// Entry pairs a composition with its stable project id.
type Entry struct {
	ID   string
	Comp *composition.Composition
}

// Project is an ordered list of compositions. Order matters: it is the
// slot order jingles take on the device.
type Project struct {
	Entries []*Entry
}

type entryYAML struct {
	ID            string  `yaml:"id"`
	Path          string  `yaml:"path"`
	MeasStartIdx  int     `yaml:"measStartIdx"`
	MeasEndIdx    int     `yaml:"measEndIdx"`
	LeftVoice     string  `yaml:"leftVoice"`
	RightVoice    string  `yaml:"rightVoice"`
	LeftChordIdx  int     `yaml:"leftChordIdx"`
	RightChordIdx int     `yaml:"rightChordIdx"`
	Bpm           int     `yaml:"bpm"`
	OctaveAdjust  float64 `yaml:"octaveAdjust"`
}

type projectYAML struct {
	Compositions []entryYAML `yaml:"compositions"`
}

// Add parses the score at path and appends it, enforcing the device's
// composition cap. The project is unchanged when parsing fails.
func (p *Project) Add(scorePath string) (*Entry, error) {
	if len(p.Entries) >= jingle.MaxNumComps {
		return nil, errors.Errorf("too many compositions (max %v)", jingle.MaxNumComps)
	}
	comp := composition.New(scorePath)
	if err := comp.Parse(); err != nil {
		return nil, errors.Wrapf(err, "parsing %v", scorePath)
	}
	entry := &Entry{ID: uuid.New().String(), Comp: comp}
	p.Entries = append(p.Entries, entry)
	return entry, nil
}

// Find returns the entry with the given id, or nil.
func (p *Project) Find(id string) *Entry {
	for _, e := range p.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Remove drops the entry with the given id.
func (p *Project) Remove(id string) error {
	for i, e := range p.Entries {
		if e.ID == id {
			p.Entries = append(p.Entries[:i], p.Entries[i+1:]...)
			return nil
		}
	}
	return errors.Errorf("no composition with id %v", id)
}

// Move shifts an entry by delta positions (negative = towards slot 0),
// clamped at the list ends.
func (p *Project) Move(id string, delta int) error {
	from := -1
	for i, e := range p.Entries {
		if e.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return errors.Errorf("no composition with id %v", id)
	}
	to := from + delta
	if to < 0 {
		to = 0
	}
	if to >= len(p.Entries) {
		to = len(p.Entries) - 1
	}
	entry := p.Entries[from]
	p.Entries = append(p.Entries[:from], p.Entries[from+1:]...)
	p.Entries = append(p.Entries[:to], append([]*Entry{entry}, p.Entries[to:]...)...)
	return nil
}

// MemUsage is the exact size of the project's multi-jingle EEPROM image:
// the region header plus, per composition, a jingle sub-header and its
// note records.
func (p *Project) MemUsage() uint32 {
	total := uint32(jingle.EEPROMHdrNumBytes)
	for _, e := range p.Entries {
		total += uint32(jingle.JingleHdrNumBytes + jingle.NoteNumBytes*e.Comp.BuildJingle().NumRecords())
	}
	return total
}

// Download encodes every composition into one image and streams it to the
// device starting at offset 0. The capacity check happens before any
// protocol exchange.
func (p *Project) Download(link composition.ChunkSender) error {
	jingles := make([]*jingle.Jingle, 0, len(p.Entries))
	for _, e := range p.Entries {
		jingles = append(jingles, e.Comp.BuildJingle())
	}
	data, err := jingle.EncodeImage(jingles)
	if err != nil {
		return err
	}
	return composition.Transfer(link, data, 0)
}

// Save writes the project file: source paths and selection state only, not
// parsed scores.
func (p *Project) Save(path string) error {
	var out projectYAML
	for _, e := range p.Entries {
		c := e.Comp
		out.Compositions = append(out.Compositions, entryYAML{
			ID:            e.ID,
			Path:          c.Path(),
			MeasStartIdx:  c.MeasStartIdx(),
			MeasEndIdx:    c.MeasEndIdx(),
			LeftVoice:     c.Voice(model.Left),
			RightVoice:    c.Voice(model.Right),
			LeftChordIdx:  c.ChordIdx(model.Left),
			RightChordIdx: c.ChordIdx(model.Right),
			Bpm:           c.Bpm(),
			OctaveAdjust:  c.OctaveAdjust(),
		})
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a project file and re-parses every referenced score. A score
// that no longer parses fails the whole load.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading project file")
	}
	var in projectYAML
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, errors.Wrap(err, "malformed project file")
	}
	if len(in.Compositions) > jingle.MaxNumComps {
		return nil, errors.Errorf("project has too many compositions (max %v)", jingle.MaxNumComps)
	}

	p := &Project{}
	for _, ey := range in.Compositions {
		comp := composition.New(ey.Path)
		if err := comp.Parse(); err != nil {
			return nil, errors.Wrapf(err, "parsing %v", ey.Path)
		}
		if err := applySelection(comp, ey); err != nil {
			return nil, errors.Wrapf(err, "restoring selection for %v", ey.Path)
		}
		id := ey.ID
		if id == "" {
			id = uuid.New().String()
		}
		p.Entries = append(p.Entries, &Entry{ID: id, Comp: comp})
	}
	return p, nil
}

func applySelection(c *composition.Composition, ey entryYAML) error {
	if err := c.SetMeasStartIdx(ey.MeasStartIdx); err != nil {
		return err
	}
	if err := c.SetMeasEndIdx(ey.MeasEndIdx); err != nil {
		return err
	}
	voices := [model.NumChannels]string{ey.LeftVoice, ey.RightVoice}
	chords := [model.NumChannels]int{ey.LeftChordIdx, ey.RightChordIdx}
	for ch := model.Channel(0); ch < model.NumChannels; ch++ {
		if voices[ch] == "" {
			voices[ch] = model.NoVoice
		}
		if err := c.SetVoice(ch, voices[ch]); err != nil {
			return err
		}
		if err := c.SetChordIdx(ch, chords[ch]); err != nil {
			return err
		}
	}
	if ey.Bpm > 0 {
		if err := c.SetBpm(ey.Bpm); err != nil {
			return err
		}
	}
	if ey.OctaveAdjust != 0 {
		if err := c.SetOctaveAdjust(ey.OctaveAdjust); err != nil {
			return err
		}
	}
	return nil
}
