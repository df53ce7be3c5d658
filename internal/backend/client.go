// Package backend talks to the persistence server that stores projects,
// tracks and segment audio. The editor never invents segment IDs; they all
// come from here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/logging"
	"github.com/ivannakotyk/SDT/internal/model"
)

var logger = logging.NewLogger("sdt/backend")

// ErrUnregisteredTrack is returned when a segment is imported into a track
// that has no server ID yet.
var ErrUnregisteredTrack = errors.New("track has no backend id")

// Client communicates with the persistence server's REST API. Tracks are
// registered under one server-side project.
type Client struct {
	apiURL     string
	apiKey     string
	projectID  int64
	http       *http.Client
	retryDelay time.Duration
}

// NewClient creates a persistence API client bound to projectID.
func NewClient(apiURL, apiKey string, projectID int64) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		projectID:  projectID,
		http:       &http.Client{Timeout: 30 * time.Second},
		retryDelay: 5 * time.Second,
	}
}

// SegmentDTO is the server's view of a segment.
type SegmentDTO struct {
	ID        int64   `json:"id"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	WavPath   string  `json:"wavPath"`
	Name      string  `json:"name"`
}

// TrackDTO is the server's view of a track.
type TrackDTO struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Order    int          `json:"order"`
	Muted    bool         `json:"isMuted"`
	Volume   float64      `json:"volume"`
	Segments []SegmentDTO `json:"segments"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// WaitForHealthy blocks until the server answers at all.
func (c *Client) WaitForHealthy(ctx context.Context) error {
	logger.Info("Waiting for persistence backend to be ready...")
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/", nil)
		if err != nil {
			return fmt.Errorf("create health request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < http.StatusInternalServerError {
				logger.Info("Persistence backend is reachable")
				return nil
			}
		}

		logger.Infof("Backend not ready, retrying in %v...", c.retryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// ImportSegment uploads a new segment's WAV to a track and returns the
// server record, including the assigned ID.
func (c *Client) ImportSegment(ctx context.Context, trackID int64, name string, wav []byte) (SegmentDTO, error) {
	var dto SegmentDTO
	path := "/api/segments/import/" + strconv.FormatInt(trackID, 10)
	if err := c.upload(ctx, path, name, wav, &dto); err != nil {
		return SegmentDTO{}, err
	}
	return dto, nil
}

// UploadSegment replaces the stored audio of an existing segment.
func (c *Client) UploadSegment(ctx context.Context, segmentID int64, name string, wav []byte) error {
	path := "/api/segments/" + strconv.FormatInt(segmentID, 10) + "/upload"
	return c.upload(ctx, path, name, wav, nil)
}

// TracksByProject lists a project's tracks in order.
func (c *Client) TracksByProject(ctx context.Context, projectID int64) ([]TrackDTO, error) {
	var out []TrackDTO
	path := "/api/tracks/by-project/" + strconv.FormatInt(projectID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTrack adds a track named name to a project.
func (c *Client) CreateTrack(ctx context.Context, projectID int64, name string) (TrackDTO, error) {
	var dto TrackDTO
	path := "/api/projects/" + strconv.FormatInt(projectID, 10) + "/tracks?name=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodPost, path, nil, "", &dto); err != nil {
		return TrackDTO{}, err
	}
	return dto, nil
}

// DeleteTrack removes a track record and its segments.
func (c *Client) DeleteTrack(ctx context.Context, trackID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/tracks/"+strconv.FormatInt(trackID, 10), nil, "", nil)
}

// DeleteSegment removes a segment record.
func (c *Client) DeleteSegment(ctx context.Context, segmentID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/segments/"+strconv.FormatInt(segmentID, 10), nil, "", nil)
}

// AssignTrackID returns the server ID of track, reusing a same-named track
// of the project or creating one.
func (c *Client) AssignTrackID(ctx context.Context, track *model.Track) (int64, error) {
	tracks, err := c.TracksByProject(ctx, c.projectID)
	if err != nil {
		return 0, err
	}
	for _, t := range tracks {
		if strings.TrimSpace(t.Name) == track.Name() {
			logger.Debugf("Track %s already stored as %d", track.Name(), t.ID)
			return t.ID, nil
		}
	}
	dto, err := c.CreateTrack(ctx, c.projectID, track.Name())
	if err != nil {
		return 0, err
	}
	if dto.ID == 0 {
		return 0, fmt.Errorf("create track %q: server returned no id", track.Name())
	}
	logger.Infof("Track %s registered as %d", track.Name(), dto.ID)
	return dto.ID, nil
}

// ReleaseTrack deletes a registered track. Unregistered tracks are skipped.
func (c *Client) ReleaseTrack(ctx context.Context, track *model.Track) error {
	if track.ID() == 0 {
		return nil
	}
	return c.DeleteTrack(ctx, track.ID())
}

// ReleaseSegment deletes a synced segment. Unsynced segments are skipped.
func (c *Client) ReleaseSegment(ctx context.Context, seg *model.Segment) error {
	if seg.ID() == 0 {
		return nil
	}
	return c.DeleteSegment(ctx, seg.ID())
}

// AssignSegmentID registers seg under track and returns its new ID.
func (c *Client) AssignSegmentID(ctx context.Context, track *model.Track, seg *model.Segment) (int64, error) {
	if track.ID() == 0 {
		return 0, fmt.Errorf("import %s: %w", track.Name(), ErrUnregisteredTrack)
	}
	wav, err := audio.EncodeWAV(seg.Samples(), seg.Format())
	if err != nil {
		return 0, fmt.Errorf("encode segment: %w", err)
	}
	dto, err := c.ImportSegment(ctx, track.ID(), wavName(seg.Name()), wav)
	if err != nil {
		return 0, err
	}
	logger.Infof("Segment %s registered as %d on track %s", seg.Name(), dto.ID, track.Name())
	return dto.ID, nil
}

// SyncSegment re-uploads an edited segment. Unsynced segments are skipped.
func (c *Client) SyncSegment(ctx context.Context, seg *model.Segment) error {
	id := seg.ID()
	if id == 0 {
		return nil
	}
	wav, err := audio.EncodeWAV(seg.Samples(), seg.Format())
	if err != nil {
		return fmt.Errorf("encode segment: %w", err)
	}
	if err := c.UploadSegment(ctx, id, wavName(seg.Name()), wav); err != nil {
		return err
	}
	logger.Debugf("Segment %d synced (%d bytes)", id, len(wav))
	return nil
}

func wavName(name string) string {
	if name == "" {
		name = "segment"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".wav") {
		name += ".wav"
	}
	return name
}

// upload posts wav as the multipart "file" field.
func (c *Client) upload(ctx context.Context, path, name string, wav []byte, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, &body, mw.FormDataContentType(), out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
