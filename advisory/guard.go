package advisory

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single oracle call to an interactive timescale.
const DefaultTimeout = 8 * time.Second

// Guard absorbs every oracle failure. One attempt per call, no retries.
// A nil Oracle always falls back (e.g. no API key configured).
type Guard struct {
	oracle  Oracle
	timeout time.Duration
	log     *zap.Logger
}

func NewGuard(oracle Oracle, timeout time.Duration, log *zap.Logger) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{oracle: oracle, timeout: timeout, log: log}
}

type Summary struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

type Assessment struct {
	Eligibility
	Fallback bool `json:"fallback"`
}

func (g *Guard) Summarize(ctx context.Context, offence string) Summary {
	if g.oracle == nil {
		return Summary{Text: FallbackSummary, Fallback: true}
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := within(ctx, func(ctx context.Context) (string, error) {
		return g.oracle.Summarize(ctx, offence)
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrMalformedResponse
	}
	if err != nil {
		g.log.Warn("legal summary unavailable", zap.String("offence", offence), zap.Error(err))
		return Summary{Text: FallbackSummary, Fallback: true}
	}
	return Summary{Text: text}
}

func (g *Guard) AssessEligibility(ctx context.Context, offence string) Assessment {
	if g.oracle == nil {
		return Assessment{Eligibility: FallbackEligibility, Fallback: true}
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	e, err := within(ctx, func(ctx context.Context) (Eligibility, error) {
		return g.oracle.AssessEligibility(ctx, offence)
	})
	if err != nil {
		g.log.Warn("eligibility check unavailable", zap.String("offence", offence), zap.Error(err))
		return Assessment{Eligibility: FallbackEligibility, Fallback: true}
	}
	return Assessment{Eligibility: e}
}

// within returns when fn does or when ctx expires, whichever is first, so an
// oracle that ignores its context still cannot hold the caller.
func within[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
