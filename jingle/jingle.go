// Package jingle defines the binary layout of jingle data in the
// controller's EEPROM and the conversion from musical values to the
// device's note records.
package jingle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Device capacity constants. These mirror the firmware's EEPROM layout and
// must be honored exactly.
const (
	// MaxEEPROMBytes is the size of the EEPROM region reserved for
	// jingle data.
	MaxEEPROMBytes = 1024
	// EEPROMHdrNumBytes is the fixed header at the start of the region.
	EEPROMHdrNumBytes = 16
	// MaxNumComps is the most jingles the header can index.
	MaxNumComps = 10
	// NoteNumBytes is the size of one note record: duty cycle,
	// frequency and duration, each a little-endian uint16.
	NoteNumBytes = 6
	// JingleHdrNumBytes precedes each jingle's records in a multi-jingle
	// image: per-channel note counts as little-endian uint16s.
	JingleHdrNumBytes = 4
)

const (
	magic   uint32 = 0x4c474e4a // "JNGL"
	version uint16 = 1

	// defaultDutyCycle is a 50% square wave; rests carry zero.
	defaultDutyCycle uint16 = 0x0080
)

// Note is one record as the firmware plays it: a square wave of Frequency
// Hz at DutyCycle for Duration milliseconds. A record with zero frequency
// and duty cycle is a rest.
type Note struct {
	DutyCycle uint16
	Frequency uint16
	Duration  uint16
}

// Rest builds a silent record of the given length.
func Rest(durationMs uint16) Note {
	return Note{Duration: durationMs}
}

// NewNote builds a sounding record.
func NewNote(frequency, durationMs uint16) Note {
	return Note{DutyCycle: defaultDutyCycle, Frequency: frequency, Duration: durationMs}
}

// FrequencyFor converts a MIDI-scale semitone pitch to Hz, scaled by the
// octave-adjust multiplier, clamped to what a uint16 record can carry.
func FrequencyFor(pitch, octaveAdjust float64) uint16 {
	hz := 440 * math.Pow(2, (pitch-69)/12) * octaveAdjust
	if hz < 0 {
		hz = 0
	}
	if hz > math.MaxUint16 {
		hz = math.MaxUint16
	}
	return uint16(math.Round(hz))
}

// DurationMs converts a length in beats at the given tempo to milliseconds,
// clamped to the record range.
func DurationMs(beats float64, bpm int) uint16 {
	if bpm <= 0 {
		return 0
	}
	ms := beats * 60000 / float64(bpm)
	if ms < 0 {
		ms = 0
	}
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	return uint16(math.Round(ms))
}

// Jingle is the device-ready form of one composition: a record list per
// channel (left is channel 0).
type Jingle struct {
	Channels [2][]Note
}

// NumRecords counts records across both channels.
func (j *Jingle) NumRecords() int {
	return len(j.Channels[0]) + len(j.Channels[1])
}

// SizeExceededError reports an encode that would overflow the EEPROM
// region.
type SizeExceededError struct {
	Needed uint32
	Limit  uint32
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("jingle data too large (%v/%v bytes)", e.Needed, e.Limit)
}

// EncodeJingle serializes a single jingle as a full EEPROM image: the
// 16-byte header (magic, version, jingle count, per-channel note counts)
// followed by left-channel records then right-channel records. Encoding the
// same jingle twice yields identical bytes. Fails before emitting anything
// if the image would exceed MaxEEPROMBytes.
func EncodeJingle(j *Jingle) ([]byte, error) {
	needed := uint32(EEPROMHdrNumBytes + NoteNumBytes*j.NumRecords())
	if needed > MaxEEPROMBytes {
		return nil, &SizeExceededError{Needed: needed, Limit: MaxEEPROMBytes}
	}

	buf := new(bytes.Buffer)
	writeHeader(buf, 1, j)
	writeRecords(buf, j)
	return buf.Bytes(), nil
}

// EncodeImage serializes several jingles into one EEPROM image. The region
// header counts the jingles; each jingle contributes a 4-byte sub-header
// (per-channel note counts) followed by its records.
func EncodeImage(jingles []*Jingle) ([]byte, error) {
	if len(jingles) > MaxNumComps {
		return nil, fmt.Errorf("too many jingles for one image (%v/%v)", len(jingles), MaxNumComps)
	}
	needed := uint32(EEPROMHdrNumBytes)
	for _, j := range jingles {
		needed += uint32(JingleHdrNumBytes + NoteNumBytes*j.NumRecords())
	}
	if needed > MaxEEPROMBytes {
		return nil, &SizeExceededError{Needed: needed, Limit: MaxEEPROMBytes}
	}

	buf := new(bytes.Buffer)
	writeHeader(buf, uint16(len(jingles)), nil)
	for _, j := range jingles {
		binary.Write(buf, binary.LittleEndian, uint16(len(j.Channels[0])))
		binary.Write(buf, binary.LittleEndian, uint16(len(j.Channels[1])))
		writeRecords(buf, j)
	}
	return buf.Bytes(), nil
}

// writeHeader emits the 16-byte region header. For the single-jingle form
// the per-channel counts live in the header itself so the image is exactly
// header plus records.
func writeHeader(buf *bytes.Buffer, numJingles uint16, single *Jingle) {
	binary.Write(buf, binary.LittleEndian, magic)
	binary.Write(buf, binary.LittleEndian, version)
	binary.Write(buf, binary.LittleEndian, numJingles)
	var left, right uint16
	if single != nil {
		left = uint16(len(single.Channels[0]))
		right = uint16(len(single.Channels[1]))
	}
	binary.Write(buf, binary.LittleEndian, left)
	binary.Write(buf, binary.LittleEndian, right)
	buf.Write(make([]byte, EEPROMHdrNumBytes-12)) // reserved
}

func writeRecords(buf *bytes.Buffer, j *Jingle) {
	for ch := 0; ch < 2; ch++ {
		for _, n := range j.Channels[ch] {
			binary.Write(buf, binary.LittleEndian, n.DutyCycle)
			binary.Write(buf, binary.LittleEndian, n.Frequency)
			binary.Write(buf, binary.LittleEndian, n.Duration)
		}
	}
}
