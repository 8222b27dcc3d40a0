package project

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"scjingle/jingle"
	"scjingle/model"
)

const scoreTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<score-partwise version="3.1">
  <part-list>
    <score-part id="P1"><part-name>Melody</part-name></score-part>
  </part-list>
  <part id="P1">
    <measure number="1">
      <attributes><divisions>1</divisions><time><beats>4</beats><beat-type>4</beat-type></time></attributes>
      <note><pitch><step>C</step><octave>4</octave></pitch><duration>4</duration><voice>1</voice></note>
    </measure>
    <measure number="2">
      <note><pitch><step>G</step><octave>4</octave></pitch><duration>4</duration><voice>1</voice></note>
    </measure>
  </part>
</score-partwise>`

func writeScoreFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(scoreTemplate), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAddAndSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	scorePath := writeScoreFile(t, dir, "tune.musicxml")
	projectPath := filepath.Join(dir, "project.yaml")

	p := &Project{}
	entry, err := p.Add(scorePath)

	assert := assert.New(t)
	assert.NoError(err)
	assert.NotEmpty(entry.ID)

	c := entry.Comp
	assert.NoError(c.SetMeasStartIdx(1))
	assert.NoError(c.SetVoice(model.Left, "P1-V1"))
	assert.NoError(c.SetBpm(90))
	assert.NoError(c.SetOctaveAdjust(2.0))

	assert.NoError(p.Save(projectPath))

	loaded, err := Load(projectPath)
	assert.NoError(err)
	assert.Equal(1, len(loaded.Entries))

	lc := loaded.Entries[0].Comp
	assert.Equal(entry.ID, loaded.Entries[0].ID)
	assert.Equal(1, lc.MeasStartIdx())
	assert.Equal(1, lc.MeasEndIdx())
	assert.Equal("P1-V1", lc.Voice(model.Left))
	assert.Equal(model.NoVoice, lc.Voice(model.Right))
	assert.Equal(90, lc.Bpm())
	assert.Equal(2.0, lc.OctaveAdjust())
}

func TestAddEnforcesCompositionCap(t *testing.T) {
	dir := t.TempDir()
	p := &Project{}

	assert := assert.New(t)
	for i := 0; i < jingle.MaxNumComps; i++ {
		path := writeScoreFile(t, dir, fmt.Sprintf("tune%v.musicxml", i))
		_, err := p.Add(path)
		assert.NoError(err)
	}

	path := writeScoreFile(t, dir, "one-too-many.musicxml")
	_, err := p.Add(path)
	assert.Error(err)
	assert.Equal(jingle.MaxNumComps, len(p.Entries))
}

func TestRemoveAndMove(t *testing.T) {
	dir := t.TempDir()
	p := &Project{}
	first, _ := p.Add(writeScoreFile(t, dir, "a.musicxml"))
	second, _ := p.Add(writeScoreFile(t, dir, "b.musicxml"))
	third, _ := p.Add(writeScoreFile(t, dir, "c.musicxml"))

	assert := assert.New(t)
	assert.NoError(p.Move(third.ID, -2))
	assert.Equal([]string{third.ID, first.ID, second.ID},
		[]string{p.Entries[0].ID, p.Entries[1].ID, p.Entries[2].ID})

	// clamped at the bottom
	assert.NoError(p.Move(first.ID, 10))
	assert.Equal(first.ID, p.Entries[2].ID)

	assert.NoError(p.Remove(second.ID))
	assert.Equal(2, len(p.Entries))
	assert.Error(p.Remove("no-such-id"))
}

type fakeSender struct {
	data []byte
}

func (f *fakeSender) TransferChunk(offset uint32, data []byte) error {
	f.data = append(f.data, data...)
	return nil
}

func TestDownloadPacksAllCompositions(t *testing.T) {
	dir := t.TempDir()
	p := &Project{}
	for _, name := range []string{"a.musicxml", "b.musicxml"} {
		entry, err := p.Add(writeScoreFile(t, dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := entry.Comp.SetVoice(model.Left, "P1-V1"); err != nil {
			t.Fatal(err)
		}
	}
	sender := &fakeSender{}

	err := p.Download(sender)

	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal(p.MemUsage(), uint32(len(sender.data)))
	assert.Equal(uint16(2), binary.LittleEndian.Uint16(sender.data[6:8]))
}

func TestLoadMissingScoreFails(t *testing.T) {
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "project.yaml")
	yaml := "compositions:\n  - id: x\n    path: " + filepath.Join(dir, "gone.musicxml") + "\n"
	if err := os.WriteFile(projectPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(projectPath)
	assert.Error(t, err)
}
