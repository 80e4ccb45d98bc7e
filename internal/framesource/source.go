package framesource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/privacy"
)

// Source yields frames until released.
type Source interface {
	// Next returns the next frame or an error wrapping ErrFrameRead when the
	// stream ends or disconnects.
	Next(ctx context.Context) (*Frame, error)
	// Release frees the underlying device or process. Idempotent.
	Release() error
	// Origin is the address that was opened.
	Origin() string
}

// Target lists the inputs tried by Acquire, in order: Primary (camera
// address), Fallback (video file) and the local capture device.
type Target struct {
	Primary     string
	Fallback    string
	DeviceIndex int
}

type openFunc func(ctx context.Context, in Input, settings *conf.FrameSourceSettings, log logger.Logger) (Source, error)

// Acquirer opens frame sources.
type Acquirer struct {
	settings conf.FrameSourceSettings
	open     openFunc
	log      logger.Logger
}

// NewAcquirer creates an Acquirer backed by ffmpeg.
func NewAcquirer(settings *conf.FrameSourceSettings, log logger.Logger) *Acquirer {
	if log == nil {
		log = logger.Global().Module("framesource")
	}
	s := *settings
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = DefaultWidth, DefaultHeight
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	if s.FFmpegPath == "" {
		s.FFmpegPath = "ffmpeg"
	}
	return &Acquirer{settings: s, open: openFFmpeg, log: log}
}

// Inputs expands t into the concrete inputs Acquire tries.
func (a *Acquirer) Inputs(t Target) []Input {
	var inputs []Input
	if t.Primary != "" {
		inputs = append(inputs, Input{Address: t.Primary, Kind: classify(t.Primary)})
	}
	if t.Fallback != "" {
		inputs = append(inputs, Input{Address: t.Fallback, Kind: InputFile})
	}
	if t.DeviceIndex >= 0 {
		inputs = append(inputs, Input{Address: a.devicePath(t.DeviceIndex), Kind: InputDevice})
	}
	return inputs
}

// Acquire opens the first input of t that yields a frame.
func (a *Acquirer) Acquire(ctx context.Context, t Target) (Source, error) {
	var attempts []error
	for _, in := range a.Inputs(t) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		safe := privacy.SanitizeStreamURL(in.Address)
		src, err := a.open(ctx, in, &a.settings, a.log)
		if err == nil {
			a.log.Info("frame source opened",
				logger.String("origin", safe),
				logger.String("input", in.Kind.String()))
			return src, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Warn("frame source unavailable, trying next",
			logger.String("origin", safe),
			logger.String("input", in.Kind.String()),
			logger.Error(privacy.WrapError(err)))
		attempts = append(attempts, fmt.Errorf("%s %s: %w", in.Kind, safe, err))
	}
	if len(attempts) == 0 {
		attempts = append(attempts, fmt.Errorf("no inputs configured"))
	}
	return nil, sourceUnavailable(attempts)
}

func (a *Acquirer) devicePath(index int) string {
	if index == 0 && a.settings.Device != "" {
		return a.settings.Device
	}
	return fmt.Sprintf("/dev/video%d", index)
}

func classify(address string) InputKind {
	if strings.Contains(address, "://") {
		return InputNetwork
	}
	if strings.HasPrefix(address, "/dev/video") {
		return InputDevice
	}
	return InputFile
}
