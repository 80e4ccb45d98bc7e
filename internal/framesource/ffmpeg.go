package framesource

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/privacy"
)

const (
	processWaitDelay = 2 * time.Second
	stderrTailBytes  = 2048
)

// InputKind classifies an address for ffmpeg.
type InputKind int

const (
	InputNetwork InputKind = iota // rtsp, http and other stream URLs
	InputFile
	InputDevice
)

func (k InputKind) String() string {
	switch k {
	case InputNetwork:
		return "network"
	case InputFile:
		return "file"
	case InputDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Input is one concrete address to try.
type Input struct {
	Address string
	Kind    InputKind
}

// ffmpegArgs builds an MJPEG image2pipe command line for in.
func ffmpegArgs(in Input, settings *conf.FrameSourceSettings) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	switch in.Kind {
	case InputNetwork:
		if strings.HasPrefix(in.Address, "rtsp") && settings.RTSPTransport != "" {
			args = append(args, "-rtsp_transport", settings.RTSPTransport)
		}
	case InputFile:
		args = append(args, "-re")
	case InputDevice:
		args = append(args, "-f", deviceFormat())
	}
	args = append(args, "-i", in.Address, "-an")
	if settings.FPS > 0 {
		args = append(args, "-vf", "fps="+strconv.Itoa(settings.FPS))
	}
	return append(args, "-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "3", "pipe:1")
}

// ffmpegSource reads frames from an ffmpeg child process.
type ffmpegSource struct {
	input  Input
	width  int
	height int
	log    logger.Logger

	cmd    *exec.Cmd
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}
	exited chan struct{}
	stderr *tailBuffer

	readErr error // set before frames is closed
	pending []byte
	seq     uint64

	releaseOnce sync.Once
}

// openFFmpeg starts ffmpeg for in and waits for the first frame. A source
// that produces nothing within the open timeout counts as not opened.
func openFFmpeg(ctx context.Context, in Input, settings *conf.FrameSourceSettings, log logger.Logger) (Source, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, settings.FFmpegPath, ffmpegArgs(in, settings)...) //nolint:gosec // G204: path from validated settings
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = processWaitDelay

	s := &ffmpegSource{
		input:  in,
		width:  settings.Width,
		height: settings.Height,
		log:    log,
		cmd:    cmd,
		cancel: cancel,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		stderr: &tailBuffer{limit: stderrTailBytes},
	}
	cmd.Stderr = s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", settings.FFmpegPath, err)
	}
	go s.readLoop(stdout)

	timer := time.NewTimer(settings.OpenTimeout)
	defer timer.Stop()

	select {
	case data, ok := <-s.frames:
		if !ok {
			// Release waits for ffmpeg so its stderr is complete
			_ = s.Release()
			return nil, s.closedError()
		}
		s.pending = data
		return s, nil
	case <-timer.C:
		_ = s.Release()
		return nil, fmt.Errorf("no frame within %s", settings.OpenTimeout)
	case <-ctx.Done():
		_ = s.Release()
		return nil, ctx.Err()
	}
}

func (s *ffmpegSource) readLoop(r io.Reader) {
	defer close(s.exited)
	defer close(s.frames)

	sc := newJPEGScanner(r)
	for sc.Scan() {
		data := bytes.Clone(sc.Bytes())
		select {
		case s.frames <- data:
		case <-s.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.readErr = err
	} else {
		s.readErr = io.EOF
	}
}

func (s *ffmpegSource) closedError() error {
	err := s.readErr
	if tail := strings.TrimSpace(s.stderr.String()); tail != "" {
		err = fmt.Errorf("%w: %s", err, tail)
	}
	return err
}

// Origin returns the opened address.
func (s *ffmpegSource) Origin() string { return s.input.Address }

// Next blocks for the next frame. The first call returns the frame that
// proved the source open. Next is not safe for concurrent use.
func (s *ffmpegSource) Next(ctx context.Context) (*Frame, error) {
	select {
	case <-s.done:
		return nil, ErrReleased
	default:
	}

	data := s.pending
	s.pending = nil
	if data == nil {
		var ok bool
		select {
		case data, ok = <-s.frames:
			if !ok {
				return nil, frameReadError(s.input.Address, s.seq, s.closedError())
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrReleased
		}
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, frameReadError(s.input.Address, s.seq, fmt.Errorf("decode jpeg: %w", err))
	}

	s.seq++
	return &Frame{
		Image:     Normalize(img, s.width, s.height),
		JPEG:      data,
		Seq:       s.seq,
		Timestamp: time.Now().UTC(),
		Width:     s.width,
		Height:    s.height,
	}, nil
}

// Release stops ffmpeg and waits for it to exit. Safe to call repeatedly.
func (s *ffmpegSource) Release() error {
	s.releaseOnce.Do(func() {
		close(s.done)
		s.cancel()
		<-s.exited
		// Wait reports the kill we just issued, so its error is informational
		if err := s.cmd.Wait(); err != nil {
			s.log.Debug("ffmpeg exited",
				logger.String("origin", privacy.SanitizeStreamURL(s.input.Address)),
				logger.Error(err))
		}
	})
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
