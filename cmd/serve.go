package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"scjingle/composition"
	"scjingle/device"
	"scjingle/jingle"
	"scjingle/model"
	"scjingle/project"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&projectFile, "file", "scjingle.yaml", "project file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the project over HTTP",
	Long: `Serves a JSON API over the project file so a thin shell can list
compositions, adjust selections and trigger downloads.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadOrNewProject()
		if err != nil {
			return err
		}
		return serve(p)
	},
}

type compositionSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Path          string   `json:"path"`
	NumMeasures   int      `json:"numMeasures"`
	MeasStartIdx  int      `json:"measStartIdx"`
	MeasEndIdx    int      `json:"measEndIdx"`
	Voices        []string `json:"voices"`
	LeftVoice     string   `json:"leftVoice"`
	RightVoice    string   `json:"rightVoice"`
	LeftChords    int      `json:"leftChords"`
	RightChords   int      `json:"rightChords"`
	LeftChordIdx  int      `json:"leftChordIdx"`
	RightChordIdx int      `json:"rightChordIdx"`
	Bpm           int      `json:"bpm"`
	OctaveAdjust  float64  `json:"octaveAdjust"`
	MemUsage      uint32   `json:"memUsage"`
}

// selectionPatch uses pointers so absent fields leave state untouched.
type selectionPatch struct {
	MeasStartIdx  *int     `json:"measStartIdx"`
	MeasEndIdx    *int     `json:"measEndIdx"`
	LeftVoice     *string  `json:"leftVoice"`
	RightVoice    *string  `json:"rightVoice"`
	LeftChordIdx  *int     `json:"leftChordIdx"`
	RightChordIdx *int     `json:"rightChordIdx"`
	Bpm           *int     `json:"bpm"`
	OctaveAdjust  *float64 `json:"octaveAdjust"`
}

type memUsageResponse struct {
	BytesUsed uint32  `json:"bytesUsed"`
	MaxBytes  uint32  `json:"maxBytes"`
	Fraction  float64 `json:"fraction"`
}

type errorResponse struct {
	Error string `json:"detail"`
}

type server struct {
	// mu serializes every handler; Project and Composition are
	// single-owner state and net/http runs handlers concurrently.
	mu       sync.Mutex
	project  *project.Project
	save     func(f func())
	saveFile string
}

func serve(p *project.Project) error {
	s := &server{
		project: p,
		// coalesce bursts of selection edits into one file write
		save:     debounce.New(time.Second),
		saveFile: projectFile,
	}

	fmt.Printf("Serving project %v on %v\n", s.saveFile, serveAddr)
	log.Fatal(http.ListenAndServe(serveAddr, s.routes()))
	return nil
}

func (s *server) routes() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/compositions", s.handleList).Methods("GET")
	router.HandleFunc("/compositions", s.handleAdd).Methods("POST")
	router.HandleFunc("/compositions/{id}", s.handleGet).Methods("GET")
	router.HandleFunc("/compositions/{id}", s.handlePatch).Methods("PATCH")
	router.HandleFunc("/compositions/{id}", s.handleDelete).Methods("DELETE")
	router.HandleFunc("/compositions/{id}/download", s.handleDownload).Methods("POST")
	router.HandleFunc("/memusage", s.handleMemUsage).Methods("GET")

	return cors.Default().Handler(router)
}

func (s *server) scheduleSave() {
	file := s.saveFile
	p := s.project
	s.save(func() {
		// the debounce goroutine fires later; take the lock again
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := p.Save(file); err != nil {
			fmt.Printf("Could not save project: %v\n", err)
		}
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func summarize(e *project.Entry) compositionSummary {
	c := e.Comp
	return compositionSummary{
		ID:            e.ID,
		Name:          c.Name(),
		Path:          c.Path(),
		NumMeasures:   c.NumMeasures(),
		MeasStartIdx:  c.MeasStartIdx(),
		MeasEndIdx:    c.MeasEndIdx(),
		Voices:        c.VoiceStrs(),
		LeftVoice:     c.Voice(model.Left),
		RightVoice:    c.Voice(model.Right),
		LeftChords:    c.NumChords(c.Voice(model.Left), c.MeasStartIdx(), c.MeasEndIdx()),
		RightChords:   c.NumChords(c.Voice(model.Right), c.MeasStartIdx(), c.MeasEndIdx()),
		LeftChordIdx:  c.ChordIdx(model.Left),
		RightChordIdx: c.ChordIdx(model.Right),
		Bpm:           c.Bpm(),
		OctaveAdjust:  c.OctaveAdjust(),
		MemUsage:      c.MemUsage(),
	}
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]compositionSummary, 0, len(s.project.Entries))
	for _, e := range s.project.Entries {
		res = append(res, summarize(e))
	}
	json.NewEncoder(w).Encode(res)
}

func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.project.Add(input.Path)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.scheduleSave()
	json.NewEncoder(w).Encode(summarize(entry))
}

func (s *server) entryOr404(w http.ResponseWriter, r *http.Request) *project.Entry {
	entry := s.project.Find(mux.Vars(r)["id"])
	if entry == nil {
		http.Error(w, "no such composition", http.StatusNotFound)
	}
	return entry
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry := s.entryOr404(w, r); entry != nil {
		json.NewEncoder(w).Encode(summarize(entry))
	}
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryOr404(w, r)
	if entry == nil {
		return
	}
	s.project.Remove(entry.ID)
	s.scheduleSave()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch selectionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryOr404(w, r)
	if entry == nil {
		return
	}
	if err := applyPatch(entry.Comp, patch); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.scheduleSave()
	json.NewEncoder(w).Encode(summarize(entry))
}

// applyPatch runs each present field through the validated setter; the
// first rejection stops the patch with prior fields already applied, which
// mirrors how the GUI applied one widget change at a time.
func applyPatch(c *composition.Composition, patch selectionPatch) error {
	if patch.MeasStartIdx != nil {
		if err := c.SetMeasStartIdx(*patch.MeasStartIdx); err != nil {
			return err
		}
	}
	if patch.MeasEndIdx != nil {
		if err := c.SetMeasEndIdx(*patch.MeasEndIdx); err != nil {
			return err
		}
	}
	voices := [model.NumChannels]*string{patch.LeftVoice, patch.RightVoice}
	chords := [model.NumChannels]*int{patch.LeftChordIdx, patch.RightChordIdx}
	for ch := model.Channel(0); ch < model.NumChannels; ch++ {
		if voices[ch] != nil {
			if err := c.SetVoice(ch, *voices[ch]); err != nil {
				return err
			}
		}
		if chords[ch] != nil {
			if err := c.SetChordIdx(ch, *chords[ch]); err != nil {
				return err
			}
		}
	}
	if patch.Bpm != nil {
		if err := c.SetBpm(*patch.Bpm); err != nil {
			return err
		}
	}
	if patch.OctaveAdjust != nil {
		if err := c.SetOctaveAdjust(*patch.OctaveAdjust); err != nil {
			return err
		}
	}
	return nil
}

func (s *server) handleMemUsage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := s.project.MemUsage()
	json.NewEncoder(w).Encode(memUsageResponse{
		BytesUsed: usage,
		MaxBytes:  jingle.MaxEEPROMBytes,
		Fraction:  float64(usage) / float64(jingle.MaxEEPROMBytes),
	})
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Port string `json:"port"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// held across the whole exchange: one serial target at a time
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryOr404(w, r)
	if entry == nil {
		return
	}

	if usage := entry.Comp.MemUsage(); usage > jingle.MaxEEPROMBytes {
		writeError(w, http.StatusUnprocessableEntity,
			&jingle.SizeExceededError{Needed: usage, Limit: jingle.MaxEEPROMBytes})
		return
	}

	var link device.Link
	if err := link.Open(input.Port); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer link.Close()

	if err := link.Clear(); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if err := entry.Comp.Download(&link, 0); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if err := link.Play(0); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
