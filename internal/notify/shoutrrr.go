package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/yardwatch/yardwatch/internal/privacy"
)

type sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrNotifier sends a text message through every configured service URL.
type ShoutrrrNotifier struct {
	sender sender
}

// NewShoutrrrNotifier validates urls and builds a sender.
func NewShoutrrrNotifier(urls []string, timeout time.Duration) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("shoutrrr: at least one URL is required")
	}
	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// service URLs carry tokens
		return nil, privacy.WrapError(fmt.Errorf("shoutrrr: %w", err))
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrNotifier{sender: router}, nil
}

// Notify sends n's message with its title.
func (s *ShoutrrrNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := stypes.Params{}
	params.SetTitle(n.Title())
	for _, err := range s.sender.Send(n.Message(), &params) {
		if err != nil {
			return privacy.WrapError(fmt.Errorf("shoutrrr: %w", err))
		}
	}
	return nil
}
