// Package composition holds the selection and reduction engine: a parsed
// score plus the user-adjustable state (measure range, per-channel voice
// and chord index, tempo, octave adjust) and the derivation of the two
// monophonic channel streams the device plays.
package composition

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"scjingle/jingle"
	"scjingle/model"
	"scjingle/score"
	"scjingle/util"
)

// ChunkSender is the slice of the device link the download path needs.
type ChunkSender interface {
	TransferChunk(offset uint32, data []byte) error
}

// ChunkDataBytes bounds the payload of one transfer exchange; the serial
// channel has a maximum line length.
const ChunkDataBytes = 32

// StreamNote is one emitted note of a resolved channel stream. Start and
// Duration are in beats from the beginning of the selected measure range.
// Streams are monophonic: no two notes of one stream overlap.
type StreamNote struct {
	Pitch    float64
	Start    float64
	Duration float64
}

// Composition owns one parsed score and the mutable selection state that
// shapes its encoded form. Instances are independent; nothing is shared.
type Composition struct {
	path  string
	score *model.Score

	measStart    int
	measEnd      int
	voices       [model.NumChannels]string
	chordIdxs    [model.NumChannels]int
	bpm          int
	octaveAdjust float64
}

// New makes an unparsed Composition for the given score path. Call Parse
// before anything else.
func New(path string) *Composition {
	return &Composition{path: path}
}

// Path returns the score path the composition was created with.
func (c *Composition) Path() string {
	return c.path
}

// Name is a short label for lists: the score filename without directories
// or extension.
func (c *Composition) Name() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse reads the score file. On success the owned score is replaced and
// all selection state resets: full measure range, no voice on either
// channel, chord indices zero, tempo and octave adjust from the score's
// defaults. On failure the composition is left exactly as it was.
func (c *Composition) Parse() error {
	s, err := score.Parse(c.path)
	if err != nil {
		return err
	}
	c.score = s
	c.measStart = 0
	c.measEnd = len(s.Measures) - 1
	for ch := model.Channel(0); ch < model.NumChannels; ch++ {
		c.voices[ch] = model.NoVoice
		c.chordIdxs[ch] = 0
	}
	c.bpm = s.Bpm
	c.octaveAdjust = 1.0
	return nil
}

func (c *Composition) NumMeasures() int {
	if c.score == nil {
		return 0
	}
	return len(c.score.Measures)
}

func (c *Composition) MeasStartIdx() int { return c.measStart }
func (c *Composition) MeasEndIdx() int   { return c.measEnd }

func (c *Composition) SetMeasStartIdx(i int) error {
	if c.score == nil {
		return ErrNotParsed
	}
	if i < 0 || i >= len(c.score.Measures) || i > c.measEnd {
		return ErrInvalidRange
	}
	c.measStart = i
	return nil
}

func (c *Composition) SetMeasEndIdx(i int) error {
	if c.score == nil {
		return ErrNotParsed
	}
	if i < 0 || i >= len(c.score.Measures) || i < c.measStart {
		return ErrInvalidRange
	}
	c.measEnd = i
	return nil
}

// VoiceStrs lists the score's voice names in stable order. The NoVoice
// sentinel is always a valid additional choice for SetVoice.
func (c *Composition) VoiceStrs() []string {
	if c.score == nil {
		return nil
	}
	return append([]string(nil), c.score.VoiceNames...)
}

func (c *Composition) Voice(ch model.Channel) string {
	if !ch.Valid() {
		return model.NoVoice
	}
	return c.voices[ch]
}

// SetVoice assigns a voice (or NoVoice) to a channel and resets that
// channel's chord index.
func (c *Composition) SetVoice(ch model.Channel, name string) error {
	if c.score == nil {
		return ErrNotParsed
	}
	if !ch.Valid() {
		return ErrInvalidChannel
	}
	if name != model.NoVoice && !c.score.HasVoice(name) {
		return model.ErrUnknownVoice
	}
	c.voices[ch] = name
	c.chordIdxs[ch] = 0
	return nil
}

func (c *Composition) ChordIdx(ch model.Channel) int {
	if !ch.Valid() {
		return 0
	}
	return c.chordIdxs[ch]
}

// SetChordIdx accepts any non-negative index. Indices beyond the current
// chord count are legal; resolution degrades them to the lowest available
// note, so a shrinking range never invalidates a prior selection.
func (c *Composition) SetChordIdx(ch model.Channel, idx int) error {
	if c.score == nil {
		return ErrNotParsed
	}
	if !ch.Valid() {
		return ErrInvalidChannel
	}
	if idx < 0 {
		return ErrInvalidChordIdx
	}
	c.chordIdxs[ch] = idx
	return nil
}

func (c *Composition) Bpm() int { return c.bpm }

func (c *Composition) SetBpm(v int) error {
	if v <= 0 {
		return ErrInvalidBpm
	}
	c.bpm = v
	return nil
}

func (c *Composition) OctaveAdjust() float64 { return c.octaveAdjust }

func (c *Composition) SetOctaveAdjust(f float64) error {
	c.octaveAdjust = f
	return nil
}

// chordsAt groups a voice's notes over the inclusive measure range by
// start instant. Keys are microbeat-quantized absolute starts; each group
// is ordered lowest pitch first.
func (c *Composition) chordsAt(voiceName string, measStart, measEnd int) map[int64][]model.Note {
	groups := make(map[int64][]model.Note)
	if c.score == nil || voiceName == model.NoVoice {
		return groups
	}
	if measStart < 0 || measEnd >= len(c.score.Measures) || measStart > measEnd {
		return groups
	}
	for m := measStart; m <= measEnd; m++ {
		base := float64(m-measStart) * c.score.BeatsPerMeasure
		for _, n := range c.score.Measures[m].Notes[voiceName] {
			abs := n
			abs.Start += base
			key := quantize(abs.Start)
			groups[key] = append(groups[key], abs)
		}
	}
	// parser orders chord members lowest pitch first already, but groups
	// can merge notes from map order; keep the invariant here
	for _, g := range groups {
		sortByPitch(g)
	}
	return groups
}

// NumChords reports the largest number of simultaneous notes found at any
// single instant of the voice across the inclusive measure range. Zero
// means the voice has no notes in range and a chord index is not
// applicable.
func (c *Composition) NumChords(voiceName string, measStart, measEnd int) int {
	max := 0
	for _, g := range c.chordsAt(voiceName, measStart, measEnd) {
		if len(g) > max {
			max = len(g)
		}
	}
	return max
}

// ResolveStream reduces a channel's selected voice to a monophonic stream
// over the selected range. At each instant the note at the channel's chord
// index is emitted (ranked by ascending pitch, 0 = lowest); an index beyond
// the chord size degrades to the lowest note. A note still sounding at the
// next instant is truncated there.
func (c *Composition) ResolveStream(ch model.Channel) []StreamNote {
	if c.score == nil || !ch.Valid() {
		return nil
	}
	groups := c.chordsAt(c.voices[ch], c.measStart, c.measEnd)
	if len(groups) == 0 {
		return nil
	}
	keys := util.SortedKeys(groups)

	var out []StreamNote
	for i, key := range keys {
		group := groups[key]
		idx := c.chordIdxs[ch]
		if idx >= len(group) {
			idx = 0
		}
		n := group[idx]
		dur := n.Duration
		if i+1 < len(keys) {
			next := unquantize(keys[i+1])
			if n.Start+dur > next {
				dur = next - n.Start
			}
		}
		if dur <= 0 {
			continue
		}
		out = append(out, StreamNote{Pitch: n.Pitch, Start: n.Start, Duration: dur})
	}
	return out
}

// BuildJingle converts both resolved streams to device note records,
// inserting rest records for gaps so the two channels stay aligned in time.
// No capacity check happens here; see Encode.
func (c *Composition) BuildJingle() *jingle.Jingle {
	var j jingle.Jingle
	for ch := model.Channel(0); ch < model.NumChannels; ch++ {
		var records []jingle.Note
		cursor := 0.0
		for _, sn := range c.ResolveStream(ch) {
			if gap := sn.Start - cursor; gap > 1e-6 {
				records = append(records, jingle.Rest(jingle.DurationMs(gap, c.bpm)))
			}
			records = append(records, jingle.NewNote(
				jingle.FrequencyFor(sn.Pitch, c.octaveAdjust),
				jingle.DurationMs(sn.Duration, c.bpm),
			))
			cursor = sn.Start + sn.Duration
		}
		j.Channels[ch] = records
	}
	return &j
}

// MemUsage is the exact size in bytes the current selection occupies on the
// device: the EEPROM header plus one fixed-size record per emitted note on
// both channels. It needs no successful encode and is what capacity
// displays should show.
func (c *Composition) MemUsage() uint32 {
	if c.score == nil {
		return jingle.EEPROMHdrNumBytes
	}
	return uint32(jingle.EEPROMHdrNumBytes + jingle.NoteNumBytes*c.BuildJingle().NumRecords())
}

// Encode serializes the current selection to a full EEPROM image. Either
// the whole image is produced or an error (notably
// *jingle.SizeExceededError) is returned with no partial state.
func (c *Composition) Encode() ([]byte, error) {
	if c.score == nil {
		return nil, ErrNotParsed
	}
	return jingle.EncodeJingle(c.BuildJingle())
}

// Download encodes the current selection and streams it through the link
// in bounded chunks starting at the given device offset. The capacity
// check happens before the first byte is sent; the first failed chunk
// aborts the download and is reported as a *TransferError. A partial
// download leaves the device in an indeterminate state; clear it before
// trying again.
func (c *Composition) Download(link ChunkSender, offset uint32) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	return Transfer(link, data, offset)
}

// Transfer streams an encoded image through the link in ChunkDataBytes
// slices, aborting on the first unacknowledged chunk.
func Transfer(link ChunkSender, data []byte, offset uint32) error {
	for start := 0; start < len(data); start += ChunkDataBytes {
		end := util.Min(start+ChunkDataBytes, len(data))
		chunkOffset := offset + uint32(start)
		if err := link.TransferChunk(chunkOffset, data[start:end]); err != nil {
			return &TransferError{Offset: chunkOffset, Cause: err}
		}
	}
	return nil
}

func quantize(beats float64) int64 {
	return int64(math.Round(beats * 1e6))
}

func unquantize(key int64) float64 {
	return float64(key) / 1e6
}

func sortByPitch(notes []model.Note) {
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].Pitch < notes[j].Pitch
	})
}
