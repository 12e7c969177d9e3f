// Package media produces the local audio and video tracks for a call. Tracks
// are fed from IVF/Ogg files when given, otherwise from a synthetic source.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/marymwortman-lang/PureConnect/internal/call"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoDevice         = errors.New("no such media device")
)

const streamID = "pureconnect"

// Options pick what to capture.
type Options struct {
	AudioFile string // Ogg/Opus
	VideoFile string // IVF/VP8
	NoAudio   bool
	NoVideo   bool
	Logger    *slog.Logger
}

// Source acquires local media per Options.
type Source struct {
	opts Options
	log  *slog.Logger
}

var _ call.MediaSource = (*Source)(nil)

func NewSource(opts Options) *Source {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{opts: opts, log: logger}
}

// Acquire opens the configured inputs and starts writing samples. It fails
// with ErrNoDevice or ErrPermissionDenied when an input cannot be opened.
func (s *Source) Acquire(ctx context.Context) (call.MediaHandle, error) {
	if s.opts.NoAudio && s.opts.NoVideo {
		return nil, fmt.Errorf("%w: audio and video both disabled", ErrNoDevice)
	}

	for _, path := range []string{s.opts.AudioFile, s.opts.VideoFile} {
		if path == "" {
			continue
		}
		if err := checkReadable(path); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, log: s.log}

	if !s.opts.NoAudio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			cancel()
			return nil, err
		}
		h.audio = track
		h.audioOn.Store(true)
		h.start(func() error {
			if s.opts.AudioFile != "" {
				return playOgg(runCtx, s.opts.AudioFile, track, &h.audioOn)
			}
			return synthAudio(runCtx, track, &h.audioOn)
		})
	}

	if !s.opts.NoVideo {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			h.Stop()
			return nil, err
		}
		h.video = track
		h.videoOn.Store(true)
		h.start(func() error {
			if s.opts.VideoFile != "" {
				return playIVF(runCtx, s.opts.VideoFile, track, &h.videoOn)
			}
			return synthVideo(runCtx, track, &h.videoOn)
		})
	}

	if err := ctx.Err(); err != nil {
		h.Stop()
		return nil, err
	}
	return h, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrNoDevice, path)
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return err
	}
	return f.Close()
}

// Handle is acquired local media.
type Handle struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool

	log    *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ call.MediaHandle = (*Handle)(nil)

func (h *Handle) start(run func() error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := run(); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Warn("media writer stopped", "err", err)
		}
	}()
}

func (h *Handle) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if h.audio != nil {
		tracks = append(tracks, h.audio)
	}
	if h.video != nil {
		tracks = append(tracks, h.video)
	}
	return tracks
}

func (h *Handle) SetAudioEnabled(enabled bool) {
	if h.audio != nil {
		h.audioOn.Store(enabled)
	}
}

func (h *Handle) SetVideoEnabled(enabled bool) {
	if h.video != nil {
		h.videoOn.Store(enabled)
	}
}

func (h *Handle) AudioEnabled() bool { return h.audioOn.Load() }
func (h *Handle) VideoEnabled() bool { return h.videoOn.Load() }

// Stop ends every writer and waits for them. Safe to call more than once.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
	})
}
