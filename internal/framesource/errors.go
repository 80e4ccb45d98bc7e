package framesource

import (
	"fmt"

	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/privacy"
)

var (
	// ErrSourceUnavailable is returned by Acquire when no input could be opened.
	ErrSourceUnavailable = errors.NewStd("no frame source could be opened")
	// ErrFrameRead is returned by Next when the stream ends or breaks.
	ErrFrameRead = errors.NewStd("frame read failed")
	// ErrReleased is returned by Next after Release.
	ErrReleased = errors.NewStd("frame source released")
)

func sourceUnavailable(attempts []error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrSourceUnavailable, privacy.WrapError(errors.Join(attempts...)))).
		Component("framesource").
		Category(errors.CategorySourceUnavailable).
		Context("attempts", len(attempts)).
		Build()
}

func frameReadError(origin string, seq uint64, cause error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrFrameRead, privacy.WrapError(cause))).
		Component("framesource").
		Category(errors.CategoryFrameRead).
		Context("origin", privacy.SanitizeStreamURL(origin)).
		Context("frames_read", seq).
		Build()
}
