// Package notify delivers failure notifications to the configured
// destinations. Delivery is routed by destination URL (mailto:, telegram:,
// slack:, webhook urls) via go-pkgz/notify.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	pnotify "github.com/go-pkgz/notify"
)

// Service sends one message to every configured destination.
type Service struct {
	Destinations []string
	Timeout      time.Duration
}

// New makes notification service for the given destination URLs. Returns nil
// when nothing is configured, safe to use as a disabled notifier.
func New(destinations []string, timeout time.Duration) *Service {
	if len(destinations) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{Destinations: destinations, Timeout: timeout}
}

// Send delivers subj+text to all destinations, collecting per-destination
// errors. Nil receiver is a no-op.
func (s *Service) Send(ctx context.Context, subj, text string) error {
	if s == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	msg := subj
	if text != "" {
		msg += "\n\n" + text
	}

	var errs []error
	for _, dest := range s.Destinations {
		if err := pnotify.Send(ctx, dest, msg); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", dest, err))
			continue
		}
		log.Printf("[DEBUG] notification sent to %s", dest)
	}
	return errors.Join(errs...)
}
