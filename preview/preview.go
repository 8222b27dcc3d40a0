// Package preview renders a composition's current selection to a Standard
// MIDI File so the reduction can be auditioned before downloading it to
// the device.
package preview

import (
	"math"
	"sort"

	goerrors "errors"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"scjingle/composition"
	"scjingle/model"
)

const ticksPerBeat = 960

var ErrNothingToPreview = goerrors.New("no notes in the current selection")

type noteEdge struct {
	tick  uint32
	on    bool
	key   uint8
	order int
}

// Write renders both resolved channel streams, one track per non-empty
// channel, honoring the composition's tempo and octave adjust (applied as
// a semitone shift, since MIDI has no frequency scaling).
func Write(c *composition.Composition, path string) error {
	var s smf.SMF
	s.TimeFormat = smf.MetricTicks(ticksPerBeat)

	semitoneShift := 0.0
	if adj := c.OctaveAdjust(); adj > 0 {
		semitoneShift = 12 * math.Log2(adj)
	}

	numTracks := 0
	for ch := model.Channel(0); ch < model.NumChannels; ch++ {
		stream := c.ResolveStream(ch)
		if len(stream) == 0 {
			continue
		}

		var track smf.Track
		track = append(track, smf.Event{Message: smf.MetaTrackSequenceName(ch.String())})
		if numTracks == 0 {
			track = append(track, smf.Event{Message: smf.MetaTempo(float64(c.Bpm()))})
		}

		var edges []noteEdge
		for i, sn := range stream {
			key := clampKey(sn.Pitch + semitoneShift)
			start := uint32(math.Round(sn.Start * ticksPerBeat))
			end := uint32(math.Round((sn.Start + sn.Duration) * ticksPerBeat))
			edges = append(edges,
				noteEdge{tick: start, on: true, key: key, order: i},
				noteEdge{tick: end, on: false, key: key, order: i})
		}
		// note-offs first on ties so the stream stays monophonic
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].tick != edges[j].tick {
				return edges[i].tick < edges[j].tick
			}
			if edges[i].on != edges[j].on {
				return !edges[i].on
			}
			return edges[i].order < edges[j].order
		})

		var lastTick uint32
		for _, e := range edges {
			delta := e.tick - lastTick
			lastTick = e.tick
			var msg midi.Message
			if e.on {
				msg = midi.NoteOn(0, e.key, 100)
			} else {
				msg = midi.NoteOff(0, e.key)
			}
			track = append(track, smf.Event{Delta: delta, Message: smf.Message(msg)})
		}
		track.Close(0)
		s.Tracks = append(s.Tracks, track)
		numTracks++
	}

	if numTracks == 0 {
		return ErrNothingToPreview
	}
	return s.WriteFile(path)
}

func clampKey(pitch float64) uint8 {
	k := math.Round(pitch)
	if k < 0 {
		k = 0
	}
	if k > 127 {
		k = 127
	}
	return uint8(k)
}
