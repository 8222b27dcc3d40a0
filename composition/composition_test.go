package composition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"scjingle/jingle"
	"scjingle/model"
)

// testComp builds a parsed composition directly from a score model, in the
// state Parse would leave it.
func testComp(s *model.Score) *Composition {
	if s.BeatsPerMeasure == 0 {
		s.BeatsPerMeasure = 4
	}
	if s.Bpm == 0 {
		s.Bpm = model.DefaultBpm
	}
	c := &Composition{
		path:         "test.musicxml",
		score:        s,
		measEnd:      len(s.Measures) - 1,
		bpm:          s.Bpm,
		octaveAdjust: 1.0,
	}
	for ch := model.Channel(0); ch < model.NumChannels; ch++ {
		c.voices[ch] = model.NoVoice
	}
	return c
}

func measure(voice string, notes ...model.Note) model.Measure {
	return model.Measure{Notes: map[string][]model.Note{voice: notes}}
}

// melodyScore: 4 measures of "Melody", one whole note each, no chords.
func melodyScore() *model.Score {
	return &model.Score{
		Measures: []model.Measure{
			measure("Melody", model.Note{Pitch: 60, Start: 0, Duration: 4}),
			measure("Melody", model.Note{Pitch: 62, Start: 0, Duration: 4}),
			measure("Melody", model.Note{Pitch: 64, Start: 0, Duration: 4}),
			measure("Melody", model.Note{Pitch: 65, Start: 0, Duration: 4}),
		},
		VoiceNames: []string{"Melody"},
	}
}

// chordScore: measure 0 has a three-note chord then a single note; measure
// 1 has a two-note chord.
func chordScore() *model.Score {
	return &model.Score{
		Measures: []model.Measure{
			measure("Piano",
				model.Note{Pitch: 60, Start: 0, Duration: 2},
				model.Note{Pitch: 64, Start: 0, Duration: 2},
				model.Note{Pitch: 67, Start: 0, Duration: 2},
				model.Note{Pitch: 72, Start: 2, Duration: 2}),
			measure("Piano",
				model.Note{Pitch: 55, Start: 0, Duration: 4},
				model.Note{Pitch: 59, Start: 0, Duration: 4}),
		},
		VoiceNames: []string{"Piano"},
	}
}

func TestNumChords(t *testing.T) {
	c := testComp(chordScore())

	assert := assert.New(t)
	assert.Equal(3, c.NumChords("Piano", 0, 1))
	assert.Equal(2, c.NumChords("Piano", 1, 1))
	assert.Equal(0, c.NumChords("Piano", 5, 9))
	assert.Equal(0, c.NumChords(model.NoVoice, 0, 1))
	assert.Equal(0, c.NumChords("Nobody", 0, 1))
}

func TestResolveStreamPicksChordIdx(t *testing.T) {
	c := testComp(chordScore())
	c.SetVoice(model.Left, "Piano")
	c.SetChordIdx(model.Left, 1)

	stream := c.ResolveStream(model.Left)

	assert := assert.New(t)
	assert.Equal(3, len(stream))
	assert.Equal(64.0, stream[0].Pitch) // middle of C-E-G
	assert.Equal(72.0, stream[1].Pitch) // single note, idx 1 degrades to lowest
	assert.Equal(59.0, stream[2].Pitch) // second of G-B
}

func TestChordIdxBeyondCountDegradesToLowest(t *testing.T) {
	c := testComp(chordScore())
	c.SetVoice(model.Left, "Piano")
	c.SetChordIdx(model.Left, 7)

	stream := c.ResolveStream(model.Left)

	assert := assert.New(t)
	assert.Equal(3, len(stream))
	assert.Equal(60.0, stream[0].Pitch)
	assert.Equal(72.0, stream[1].Pitch)
	assert.Equal(55.0, stream[2].Pitch)
}

func TestResolveStreamIsMonophonic(t *testing.T) {
	// the second note starts while the first still sounds
	s := &model.Score{
		Measures: []model.Measure{
			measure("V",
				model.Note{Pitch: 60, Start: 0, Duration: 4},
				model.Note{Pitch: 62, Start: 1, Duration: 1},
				model.Note{Pitch: 64, Start: 3, Duration: 1}),
		},
		VoiceNames: []string{"V"},
	}
	c := testComp(s)
	c.SetVoice(model.Right, "V")

	stream := c.ResolveStream(model.Right)

	assert := assert.New(t)
	assert.Equal(3, len(stream))
	for i := 1; i < len(stream); i++ {
		prev := stream[i-1]
		assert.LessOrEqual(prev.Start+prev.Duration, stream[i].Start+1e-9)
	}
	assert.Equal(1.0, stream[0].Duration) // truncated at the next onset
}

func TestNoVoiceEmitsEmptyStream(t *testing.T) {
	c := testComp(melodyScore())
	c.SetVoice(model.Left, "Melody")

	assert := assert.New(t)
	assert.NotEmpty(c.ResolveStream(model.Left))
	assert.Empty(c.ResolveStream(model.Right))
}

func TestRangeSetters(t *testing.T) {
	c := testComp(melodyScore())

	assert := assert.New(t)
	assert.NoError(c.SetMeasStartIdx(2))
	assert.NoError(c.SetMeasEndIdx(3))
	assert.ErrorIs(c.SetMeasStartIdx(-1), ErrInvalidRange)
	assert.ErrorIs(c.SetMeasStartIdx(4), ErrInvalidRange)
	assert.ErrorIs(c.SetMeasEndIdx(1), ErrInvalidRange) // would make start > end
	// failed setters leave state unchanged
	assert.Equal(2, c.MeasStartIdx())
	assert.Equal(3, c.MeasEndIdx())
}

func TestVoiceAndChordSetters(t *testing.T) {
	c := testComp(chordScore())

	assert := assert.New(t)
	assert.ErrorIs(c.SetVoice(model.Left, "Nobody"), model.ErrUnknownVoice)
	assert.NoError(c.SetVoice(model.Left, "Piano"))
	assert.NoError(c.SetChordIdx(model.Left, 2))
	assert.ErrorIs(c.SetChordIdx(model.Left, -1), ErrInvalidChordIdx)
	assert.Equal(2, c.ChordIdx(model.Left))

	// assigning a voice resets the channel's chord index
	assert.NoError(c.SetVoice(model.Left, model.NoVoice))
	assert.Equal(0, c.ChordIdx(model.Left))

	assert.ErrorIs(c.SetBpm(0), ErrInvalidBpm)
	assert.NoError(c.SetBpm(90))
	assert.Equal(90, c.Bpm())
}

func TestMemUsageScenario(t *testing.T) {
	c := testComp(melodyScore())
	c.SetVoice(model.Left, "Melody")

	// header plus one record per measure, right channel empty
	want := uint32(jingle.EEPROMHdrNumBytes + 4*jingle.NoteNumBytes)
	assert.Equal(t, want, c.MemUsage())
}

func TestMemUsageGrowsWithRange(t *testing.T) {
	c := testComp(melodyScore())
	c.SetVoice(model.Left, "Melody")

	assert := assert.New(t)
	var prev uint32
	for end := 0; end < c.NumMeasures(); end++ {
		c.SetMeasEndIdx(end)
		usage := c.MemUsage()
		assert.GreaterOrEqual(usage, prev)
		prev = usage
	}
}

func TestGapsBecomeRestRecords(t *testing.T) {
	s := &model.Score{
		Measures: []model.Measure{
			measure("V",
				model.Note{Pitch: 60, Start: 0, Duration: 1},
				model.Note{Pitch: 62, Start: 3, Duration: 1}),
		},
		VoiceNames: []string{"V"},
	}
	c := testComp(s)
	c.SetVoice(model.Left, "V")

	j := c.BuildJingle()

	assert := assert.New(t)
	assert.Equal(3, len(j.Channels[model.Left]))
	rest := j.Channels[model.Left][1]
	assert.Equal(uint16(0), rest.Frequency)
	assert.Equal(jingle.DurationMs(2, c.Bpm()), rest.Duration)
}

func TestEncodeIsDeterministic(t *testing.T) {
	c := testComp(chordScore())
	c.SetVoice(model.Left, "Piano")
	c.SetVoice(model.Right, "Piano")
	c.SetChordIdx(model.Right, 2)

	first, err1 := c.Encode()
	second, err2 := c.Encode()

	assert := assert.New(t)
	assert.NoError(err1)
	assert.NoError(err2)
	assert.Equal(first, second)
}

type fakeLink struct {
	chunks  [][]byte
	offsets []uint32
	failAt  int // 1-based call number to fail on, 0 = never
	err     error
}

func (f *fakeLink) TransferChunk(offset uint32, data []byte) error {
	f.offsets = append(f.offsets, offset)
	f.chunks = append(f.chunks, append([]byte(nil), data...))
	if f.failAt > 0 && len(f.chunks) == f.failAt {
		return f.err
	}
	return nil
}

func hugeScore() *model.Score {
	var notes []model.Note
	for i := 0; i < 200; i++ {
		notes = append(notes, model.Note{Pitch: 60, Start: float64(i), Duration: 1})
	}
	return &model.Score{
		Measures:        []model.Measure{{Notes: map[string][]model.Note{"V": notes}}},
		VoiceNames:      []string{"V"},
		BeatsPerMeasure: 200,
	}
}

func TestDownloadChunksWholeImage(t *testing.T) {
	c := testComp(melodyScore())
	c.SetVoice(model.Left, "Melody")
	link := &fakeLink{}

	err := c.Download(link, 0)

	assert := assert.New(t)
	assert.NoError(err)
	// 40-byte image in 32-byte chunks
	assert.Equal([]uint32{0, 32}, link.offsets)
	assert.Equal(32, len(link.chunks[0]))
	assert.Equal(8, len(link.chunks[1]))

	var total []byte
	for _, chunk := range link.chunks {
		total = append(total, chunk...)
	}
	want, _ := c.Encode()
	assert.Equal(want, total)
}

func TestDownloadHonorsOffset(t *testing.T) {
	c := testComp(melodyScore())
	c.SetVoice(model.Left, "Melody")
	link := &fakeLink{}

	assert := assert.New(t)
	assert.NoError(c.Download(link, 100))
	assert.Equal([]uint32{100, 132}, link.offsets)
}

func TestDownloadRefusesOversizeBeforeAnyExchange(t *testing.T) {
	c := testComp(hugeScore())
	c.SetVoice(model.Left, "V")
	link := &fakeLink{}

	err := c.Download(link, 0)

	assert := assert.New(t)
	var sizeErr *jingle.SizeExceededError
	assert.ErrorAs(err, &sizeErr)
	assert.Empty(link.chunks)
}

func TestDownloadAbortsOnFirstChunkFailure(t *testing.T) {
	c := testComp(melodyScore())
	c.SetVoice(model.Left, "Melody")
	cause := assert.AnError
	link := &fakeLink{failAt: 1, err: cause}

	err := c.Download(link, 0)

	assert := assert.New(t)
	var transferErr *TransferError
	assert.ErrorAs(err, &transferErr)
	assert.ErrorIs(err, cause)
	assert.Equal(1, len(link.chunks))
}
