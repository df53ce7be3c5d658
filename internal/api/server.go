// Package api exposes the editing session and the playback controller as a
// small JSON-over-HTTP control surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/backend"
	"github.com/ivannakotyk/SDT/internal/codec"
	"github.com/ivannakotyk/SDT/internal/edit"
	"github.com/ivannakotyk/SDT/internal/logging"
	"github.com/ivannakotyk/SDT/internal/model"
	"github.com/ivannakotyk/SDT/internal/playback"
	"github.com/ivannakotyk/SDT/internal/selection"
	"github.com/ivannakotyk/SDT/internal/waveform"
)

var logger = logging.NewLogger("sdt/api")

// maxUpload bounds imported files.
const maxUpload = 512 << 20

// Syncer pushes an edited segment to persistent storage. backend.Client
// satisfies it.
type Syncer interface {
	SyncSegment(ctx context.Context, seg *model.Segment) error
}

// Options wires a Server.
type Options struct {
	Session *edit.Session
	Player  *playback.Controller
	Codec   codec.Service
	Syncer  Syncer // optional

	ExportDir    string
	NameTemplate string
}

// Server routes control requests.
type Server struct {
	session  *edit.Session
	player   *playback.Controller
	codec    codec.Service
	syncer   Syncer
	exporter *exporter
}

// NewServer validates the options and parses the export name template.
func NewServer(opts Options) (*Server, error) {
	if opts.Session == nil || opts.Player == nil || opts.Codec == nil {
		return nil, errors.New("api: session, player and codec are required")
	}
	exp, err := newExporter(opts.ExportDir, opts.NameTemplate, opts.Codec)
	if err != nil {
		return nil, err
	}
	return &Server{
		session:  opts.Session,
		player:   opts.Player,
		codec:    opts.Codec,
		syncer:   opts.Syncer,
		exporter: exp,
	}, nil
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/tracks/remove", post(s.handleRemoveTrack))
	mux.HandleFunc("/api/import", post(s.handleImport))
	mux.HandleFunc("/api/select", post(s.handleSelect))
	mux.HandleFunc("/api/copy", post(s.handleCopy))
	mux.HandleFunc("/api/cut", post(s.handleCut))
	mux.HandleFunc("/api/paste", post(s.handlePaste))
	mux.HandleFunc("/api/reverse", post(s.handleReverse))
	mux.HandleFunc("/api/tempo", post(s.handleTempo))
	mux.HandleFunc("/api/play", post(s.handlePlay))
	mux.HandleFunc("/api/stop", post(s.handleStop))
	mux.HandleFunc("/api/export", post(s.handleExport))
	mux.HandleFunc("/api/peaks", s.handlePeaks)
}

// Handler returns a mux holding only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// --- Status ---

type trackInfo struct {
	ID        int64               `json:"id"`
	Name      string              `json:"name"`
	Samples   int                 `json:"samples"`
	Duration  float64             `json:"duration"`
	Segments  int                 `json:"segments"`
	Selection selection.Selection `json:"selection"`
}

func (s *Server) tracks() []trackInfo {
	var out []trackInfo
	for _, tr := range s.session.Project().Tracks() {
		info := trackInfo{
			ID:        tr.ID(),
			Name:      tr.Name(),
			Duration:  tr.Duration().Seconds(),
			Segments:  len(tr.Segments()),
			Selection: s.session.Selection(tr.Name()),
		}
		if seg := tr.MainSegment(); seg != nil {
			info.Samples = seg.Len()
		}
		out = append(out, info)
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.session.Project()
	clip := 0
	if c := s.session.Clipboard(); c != nil {
		clip = c.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project":   p.Name(),
		"duration":  p.Duration().Seconds(),
		"state":     s.player.State().String(),
		"target":    s.player.Target(),
		"position":  s.player.Position().Seconds(),
		"clipboard": clip,
		"tracks":    s.tracks(),
	})
}

// --- Tracks ---

type trackRequest struct {
	Track string `json:"track"`
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"tracks": s.tracks(),
			"tree":   model.Tree(s.session.Project()),
		})
	case http.MethodPost:
		var req trackRequest
		if !readJSON(w, r, &req) {
			return
		}
		tr, err := s.session.AddTrack(r.Context(), req.Track)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "track": tr.Name()})
	default:
		http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !readJSON(w, r, &req) {
		return
	}
	if s.player.Target() == req.Track {
		s.player.Stop()
	}
	if err := s.session.RemoveTrack(r.Context(), req.Track); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleImport decodes the multipart "file" field and replaces the segments
// of the track named by the "track" query parameter.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("track")
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "multipart field 'file' required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	buf, f, err := s.codec.Decode(r.Context(), hdr.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}
	segName := strings.TrimSuffix(filepath.Base(hdr.Filename), filepath.Ext(hdr.Filename))
	seg, err := model.NewSegment(segName, f, buf)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.session.Import(r.Context(), name, seg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"id":       seg.ID(),
		"segment":  seg.Name(),
		"samples":  seg.Len(),
		"duration": seg.Duration().Seconds(),
		"format":   f.String(),
	})
}

// --- Editing ---

type selectRequest struct {
	Track  string  `json:"track"`
	XStart float64 `json:"x_start"`
	XEnd   float64 `json:"x_end"`
	Clear  bool    `json:"clear"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Clear {
		s.session.ClearSelection(req.Track)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "selection": s.session.Selection(req.Track)})
		return
	}
	if err := s.session.Select(req.Track, req.XStart, req.XEnd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "selection": s.session.Selection(req.Track)})
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := s.session.Copy(req.Track)
	s.respondEdit(w, r, res, err, false)
}

func (s *Server) handleCut(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := s.session.Cut(req.Track)
	s.respondEdit(w, r, res, err, true)
}

type pasteRequest struct {
	Track  string   `json:"track"`
	Cursor float64  `json:"cursor"` // fraction of the track, used without a selection
	X      *float64 `json:"x"`      // canvas pixel, overrides cursor
}

func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	var req pasteRequest
	if !readJSON(w, r, &req) {
		return
	}
	cursor := req.Cursor
	if req.X != nil {
		cursor = s.session.Mapper().Fraction(*req.X)
	}
	res, err := s.session.Paste(req.Track, cursor)
	s.respondEdit(w, r, res, err, true)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := s.session.Reverse(req.Track)
	s.respondEdit(w, r, res, err, true)
}

type tempoRequest struct {
	Track  string  `json:"track"`
	Factor float64 `json:"factor"`
}

func (s *Server) handleTempo(w http.ResponseWriter, r *http.Request) {
	var req tempoRequest
	if !readJSON(w, r, &req) {
		return
	}
	select {
	case out := <-s.session.ChangeTempoAsync(r.Context(), req.Track, req.Factor):
		s.respondEdit(w, r, out.Result, out.Err, true)
	case <-r.Context().Done():
		logger.Warnf("Tempo request on %s abandoned: %v", req.Track, r.Context().Err())
	}
}

// respondEdit writes an edit result. Mutating edits are pushed to the
// backend; a failed push is reported but does not undo the edit.
func (s *Server) respondEdit(w http.ResponseWriter, r *http.Request, res edit.Result, err error, mutated bool) {
	if err != nil {
		writeError(w, err)
		return
	}
	body := map[string]any{"ok": true, "result": res}
	if mutated && s.syncer != nil {
		if tr, ok := s.session.Project().Track(res.Track); ok {
			if seg := tr.MainSegment(); seg != nil {
				if err := s.syncer.SyncSegment(r.Context(), seg); err != nil {
					logger.Warnf("Sync %s failed: %v", tr.Name(), err)
					body["sync_error"] = err.Error()
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// --- Playback ---

type playRequest struct {
	Track string   `json:"track"` // empty plays the project mix
	At    *float64 `json:"at"`    // seconds
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !readJSON(w, r, &req) {
		return
	}
	var err error
	if req.At != nil {
		err = s.player.StartAt(req.Track, time.Duration(*req.At*float64(time.Second)))
	} else {
		err = s.player.Start(req.Track)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "target": s.player.Target(), "state": s.player.State().String()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.player.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"state":    s.player.State().String(),
		"position": s.player.Position().Seconds(),
	})
}

// --- Export ---

type exportRequest struct {
	Track     string `json:"track"`   // empty exports the project mix
	Segment   bool   `json:"segment"` // export the track's main segment instead of the track
	Container string `json:"container"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !readJSON(w, r, &req) {
		return
	}
	var c model.Component = s.session.Project()
	if req.Track != "" {
		tr, ok := s.session.Project().Track(req.Track)
		if !ok {
			writeError(w, edit.ErrTrackNotFound)
			return
		}
		c = tr
		if req.Segment {
			seg := tr.MainSegment()
			if seg == nil {
				writeError(w, edit.ErrNoSegment)
				return
			}
			c = seg
		}
	}
	path, err := s.exporter.Export(r.Context(), c, req.Container)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

// --- Waveform ---

func (s *Server) handlePeaks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tr, ok := s.session.Project().Track(q.Get("track"))
	if !ok {
		writeError(w, edit.ErrTrackNotFound)
		return
	}
	columns := int(s.session.Mapper().Width)
	if v := q.Get("columns"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100000 {
			http.Error(w, "columns must be 1-100000", http.StatusBadRequest)
			return
		}
		columns = n
	}
	buf := tr.Render()
	body := map[string]any{
		"track":   tr.Name(),
		"samples": buf.Len(),
		"peaks":   waveform.Peaks(buf, columns),
	}
	if s.player.Target() == tr.Name() {
		at := tr.Format().Samples(s.player.Position())
		body["playhead"] = waveform.Column(at, buf.Len(), columns)
	}
	writeJSON(w, http.StatusOK, body)
}

// --- Helpers ---

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Errorf("Request failed: %v", err)
	}
	writeJSON(w, code, map[string]any{"ok": false, "error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var ce *codec.Error
	var se *backend.StatusError
	switch {
	case errors.Is(err, edit.ErrTrackNotFound), errors.Is(err, playback.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, edit.ErrInvalidName), errors.Is(err, edit.ErrInvalidTempo),
		errors.Is(err, ErrUnsupportedContainer):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrUnsupportedFormat), errors.Is(err, audio.ErrInvalidContainer),
		errors.Is(err, audio.ErrChannelMismatch):
		return http.StatusUnsupportedMediaType
	case edit.IsPrecondition(err), errors.Is(err, edit.ErrNoSegment), errors.Is(err, edit.ErrStaleEdit),
		errors.Is(err, playback.ErrNothingToPlay):
		return http.StatusConflict
	case errors.As(err, &ce), errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
