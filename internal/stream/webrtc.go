package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

// opusRate is the only rate WebRTC Opus peers are guaranteed to accept.
const opusRate = 48000

// WebRTCHandler answers SDP offers with a send-only Opus track that carries
// the playback mix.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	bitrate     int

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]struct{}
}

// NewWebRTCHandler creates a WebRTC monitor handler.
func NewWebRTCHandler(b *Broadcaster, bitrate int) *WebRTCHandler {
	if bitrate <= 0 {
		bitrate = 128000
	}
	return &WebRTCHandler{
		broadcaster: b,
		bitrate:     bitrate,
		peers:       make(map[*webrtc.PeerConnection]struct{}),
	}
}

// PeerCount returns the number of connected monitors.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// offerError is a failed negotiation step and the status it maps to.
type offerError struct {
	status int
	step   string
	err    error
}

func (e *offerError) Error() string { return e.step + ": " + e.err.Error() }
func (e *offerError) Unwrap() error { return e.err }

func allowCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, err := h.answer(offer)
	if err != nil {
		logger.Warnf("WebRTC offer rejected: %v", err)
		status := http.StatusInternalServerError
		var oe *offerError
		if errors.As(err, &oe) {
			status = oe.status
		}
		http.Error(w, err.Error(), status)
		return
	}

	h.mu.Lock()
	h.peers[pc] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	logger.Infof("WebRTC monitor connected (total: %d)", n)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			if h.drop(pc) {
				pc.Close()
				logger.Infof("WebRTC monitor gone: %s (remaining: %d)", s, h.PeerCount())
			}
		}
	})
	go h.feed(track)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// answer builds a peer connection for offer and returns it once its local
// description holds every ICE candidate, so the reply needs no trickle.
func (h *WebRTCHandler) answer(offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, &offerError{http.StatusInternalServerError, "peer connection", err}
	}
	fail := func(status int, step string, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
		pc.Close()
		return nil, nil, &offerError{status, step, err}
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusRate, Channels: audio.Channels},
		"audio", "sdt-monitor",
	)
	if err != nil {
		return fail(http.StatusInternalServerError, "monitor track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(http.StatusInternalServerError, "monitor track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, "remote description", err)
	}
	desc, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusInternalServerError, "answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return fail(http.StatusInternalServerError, "local description", err)
	}
	<-gathered
	return pc, track, nil
}

// feed encodes broadcast frames to Opus until the track rejects a write or
// the subscription ends.
func (h *WebRTCHandler) feed(track *webrtc.TrackLocalStaticSample) {
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(opusRate, audio.Channels, opus.AppAudio)
	if err != nil {
		logger.Errorf("WebRTC: opus encoder: %v", err)
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		logger.Warnf("WebRTC: bitrate %d refused: %v", h.bitrate, err)
	}

	frames := opusRate * int(audio.FrameDuration.Milliseconds()) / 1000
	packet := make([]byte, 4000)
	for {
		select {
		case <-listener.done:
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(ResampleFrame(frame.Samples, frames), packet)
			if err != nil {
				logger.Warnf("WebRTC: opus encode: %v", err)
				continue
			}
			if track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration}) != nil {
				return
			}
		}
	}
}

// drop forgets pc and reports whether it was still registered.
func (h *WebRTCHandler) drop(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[pc]; !ok {
		return false
	}
	delete(h.peers, pc)
	return true
}
