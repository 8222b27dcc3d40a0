package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsEmptyScore(t *testing.T) {
	assert := assert.New(t)
	assert.ErrorIs((&Score{}).Validate(), ErrEmptyScore)
	assert.ErrorIs((&Score{VoiceNames: []string{"V"}}).Validate(), ErrEmptyScore)
}

func TestValidateRejectsUnknownVoice(t *testing.T) {
	s := &Score{
		Measures: []Measure{
			{Notes: map[string][]Note{"Ghost": {{Pitch: 60, Duration: 1}}}},
		},
		VoiceNames: []string{"Melody"},
	}
	assert.ErrorIs(t, s.Validate(), ErrUnknownVoice)
}

func TestChannelValid(t *testing.T) {
	assert := assert.New(t)
	assert.True(Left.Valid())
	assert.True(Right.Valid())
	assert.False(Channel(2).Valid())
	assert.False(Channel(-1).Valid())
	assert.Equal("left", Left.String())
	assert.Equal("right", Right.String())
}
