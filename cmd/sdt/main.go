package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ivannakotyk/SDT/internal/api"
	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/backend"
	"github.com/ivannakotyk/SDT/internal/codec"
	"github.com/ivannakotyk/SDT/internal/config"
	"github.com/ivannakotyk/SDT/internal/edit"
	"github.com/ivannakotyk/SDT/internal/logging"
	"github.com/ivannakotyk/SDT/internal/model"
	"github.com/ivannakotyk/SDT/internal/playback"
	"github.com/ivannakotyk/SDT/internal/sink"
	"github.com/ivannakotyk/SDT/internal/stream"
)

var logger = logging.NewLogger("sdt")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("config: %v", err)
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Infof("sdt starting up (project %q)...", cfg.ProjectName)

	codecs := codec.NewFFmpeg(cfg.FFmpegPath, cfg.TempDir)

	// Broadcaster: fan-out playback frames to the monitors
	broadcaster := stream.NewBroadcaster()

	var device sink.Device
	switch cfg.Output {
	case config.OutputStream:
		dev := stream.NewDevice()
		go broadcaster.Run(ctx, dev.Frames())
		device = dev
		logger.Info("Output: software clock (monitors only)")
	case config.OutputDevice:
		device = sink.NewOtoDevice(audio.StandardFormat)
		logger.Info("Output: sound card")
	default:
		fatalf("unknown output %q (want %q or %q)", cfg.Output, config.OutputDevice, config.OutputStream)
	}

	// Persistence backend (optional -- assigns track and segment IDs and stores edits)
	opts := edit.Options{
		CanvasWidth:        cfg.CanvasWidth,
		SelectionThreshold: cfg.SelectionThreshold,
		Resampler:          codecs,
	}
	var syncer api.Syncer
	if cfg.BackendURL != "" {
		if cfg.BackendProjectID <= 0 {
			fatalf("SDT_BACKEND_PROJECT must name the backend project when SDT_BACKEND_URL is set")
		}
		client := backend.NewClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendProjectID)
		healthCtx, healthCancel := context.WithTimeout(ctx, time.Minute)
		err := client.WaitForHealthy(healthCtx)
		healthCancel()
		if err != nil {
			fatalf("persistence backend not available: %v", err)
		}
		opts.Assigner = client
		opts.Registry = client
		syncer = client
		logger.Infof("Backend connected: %s (project %d)", cfg.BackendURL, cfg.BackendProjectID)
	} else {
		logger.Info("Backend not configured (set SDT_BACKEND_URL to persist segments)")
	}

	project := model.NewProject(cfg.ProjectName)
	session := edit.NewSession(project, opts)
	player := playback.NewController(project, device, cfg.ProgressInterval, cfg.EndEpsilon)

	for _, path := range os.Args[1:] {
		if err := importFile(ctx, session, codecs, path); err != nil {
			logger.Errorf("Import %s: %v", path, err)
		}
	}

	go logEvents(ctx, player)

	apiServer, err := api.NewServer(api.Options{
		Session:      session,
		Player:       player,
		Codec:        codecs,
		Syncer:       syncer,
		ExportDir:    cfg.ExportDir,
		NameTemplate: cfg.ExportNameTemplate,
	})
	if err != nil {
		fatalf("api: %v", err)
	}

	// HTTP routes
	mux := http.NewServeMux()
	apiServer.Register(mux)

	// Playback monitors
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, cfg.FFmpegPath, cfg.MonitorBitrate))
	mux.Handle("/offer", stream.NewWebRTCHandler(broadcaster, cfg.MonitorBitrate))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down...")
		player.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Infof("sdt live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		fatalf("HTTP server error: %v", err)
	}
}

// importFile decodes path into a new track named after the file.
func importFile(ctx context.Context, session *edit.Session, codecs codec.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	buf, f, err := codecs.Decode(ctx, path, data)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	tr, err := session.AddTrack(ctx, name)
	if err != nil {
		return err
	}
	seg, err := model.NewSegment(name, f, buf)
	if err != nil {
		return err
	}
	return session.Import(ctx, tr.Name(), seg)
}

func logEvents(ctx context.Context, player *playback.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-player.Events():
			switch ev.Kind {
			case playback.Finished:
				logger.Infof("Finished: %s (%v)", ev.Target, ev.Length)
			default:
				logger.Tracef("%s %5.1f%% (%v / %v)", ev.Target, ev.Fraction*100, ev.Position, ev.Length)
			}
		}
	}
}

func fatalf(format string, args ...any) {
	logger.Errorf(format, args...)
	os.Exit(1)
}
