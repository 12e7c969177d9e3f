package media

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	opusFrame  = 20 * time.Millisecond
	videoFrame = time.Second / 30
	opusRate   = 48000
)

var errEmptyInput = errors.New("media file has no frames")

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// vp8Placeholder stands in for a frame when no camera file is given. The
// remote decoder discards it.
var vp8Placeholder = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}

func synthAudio(ctx context.Context, track *webrtc.TrackLocalStaticSample, _ *atomic.Bool) error {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				return err
			}
		}
	}
}

func synthVideo(ctx context.Context, track *webrtc.TrackLocalStaticSample, enabled *atomic.Bool) error {
	ticker := time.NewTicker(videoFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !enabled.Load() {
				continue
			}
			if err := track.WriteSample(pionmedia.Sample{Data: vp8Placeholder, Duration: videoFrame}); err != nil {
				return err
			}
		}
	}
}

// playOgg loops an Ogg/Opus file into track, sending silence while muted.
func playOgg(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, enabled *atomic.Bool) error {
	for {
		n, err := playOggOnce(ctx, path, track, enabled)
		if !errors.Is(err, io.EOF) {
			return err
		}
		if n == 0 {
			return errEmptyInput
		}
	}
}

func playOggOnce(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, enabled *atomic.Bool) (int, error) {
	var n int
	f, err := os.Open(path)
	if err != nil {
		return n, err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return n, err
	}

	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		page, header, err := ogg.ParseNextPage()
		if err != nil {
			return n, err
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(samples) * time.Second / opusRate

		data := page
		if !enabled.Load() {
			data = opusSilence
		}
		if err := track.WriteSample(pionmedia.Sample{Data: data, Duration: duration}); err != nil {
			return n, err
		}
		n++

		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-ticker.C:
		}
	}
}

// playIVF loops an IVF file into track, skipping frames while disabled.
func playIVF(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, enabled *atomic.Bool) error {
	for {
		n, err := playIVFOnce(ctx, path, track, enabled)
		if !errors.Is(err, io.EOF) {
			return err
		}
		if n == 0 {
			return errEmptyInput
		}
	}
}

func playIVFOnce(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, enabled *atomic.Bool) (int, error) {
	var n int
	f, err := os.Open(path)
	if err != nil {
		return n, err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return n, err
	}

	interval := videoFrame
	if header.TimebaseDenominator > 0 {
		interval = time.Duration(header.TimebaseNumerator) * time.Second / time.Duration(header.TimebaseDenominator)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		frame, _, err := ivf.ParseNextFrame()
		if err != nil {
			return n, err
		}
		n++

		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-ticker.C:
		}

		if !enabled.Load() {
			continue
		}
		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
			return n, err
		}
	}
}
