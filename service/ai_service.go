package service

import (
	"context"
	"time"
)

// AIService is a stateless single-turn text completion backend.
type AIService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type timeoutAI struct {
	next    AIService
	timeout time.Duration
}

// WithTimeout bounds every Complete call of next by d. A non-positive d
// returns next unchanged.
func WithTimeout(next AIService, d time.Duration) AIService {
	if d <= 0 {
		return next
	}
	return &timeoutAI{next: next, timeout: d}
}

func (t *timeoutAI) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, prompt)
}
