// Package mock provides an in-memory Notifier for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/avezhov/passport/internal/server/models"
)

// Sent records a single dispatched message.
type Sent struct {
	Kind  string // "welcome" or "reset"
	Email string
	URL   string
}

// Notifier records sends and fails them with the configured errors.
type Notifier struct {
	mu sync.Mutex

	WelcomeErr error
	ResetErr   error

	Messages []Sent
}

func (n *Notifier) SendWelcome(ctx context.Context, user *models.User, profileURL string) error {
	n.record(Sent{Kind: "welcome", Email: user.Email, URL: profileURL})
	return n.WelcomeErr
}

func (n *Notifier) SendPasswordReset(ctx context.Context, user *models.User, resetURL string, validFor time.Duration) error {
	n.record(Sent{Kind: "reset", Email: user.Email, URL: resetURL})
	return n.ResetErr
}

// LastMessage returns the most recently recorded message, or a zero Sent.
func (n *Notifier) LastMessage() Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Messages) == 0 {
		return Sent{}
	}
	return n.Messages[len(n.Messages)-1]
}

// LastOfKind returns the most recent message of the given kind, or a zero
// Sent. Useful when a background welcome send may interleave with the
// message under test.
func (n *Notifier) LastOfKind(kind string) Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.Messages) - 1; i >= 0; i-- {
		if n.Messages[i].Kind == kind {
			return n.Messages[i]
		}
	}
	return Sent{}
}

func (n *Notifier) record(s Sent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, s)
}
