package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"voicebubble/internal/domain"
	"voicebubble/internal/ports"
)

type capability string

const (
	capabilityRecognition capability = "recognition"
	capabilityMicrophone  capability = "microphone"
)

// Gate caches the answers of an Authorizer. Grants are kept for the process
// lifetime. Denials are kept too unless recheckDenied is set, in which case
// the provider is asked again on the next check.
type Gate struct {
	provider      ports.Authorizer
	recheckDenied bool
	log           zerolog.Logger

	group singleflight.Group

	mu      sync.Mutex
	answers map[capability]bool
}

func NewGate(provider ports.Authorizer, recheckDenied bool, log zerolog.Logger) *Gate {
	return &Gate{
		provider:      provider,
		recheckDenied: recheckDenied,
		log:           log.With().Str("component", "permission").Logger(),
		answers:       make(map[capability]bool, 2),
	}
}

// Check resolves both capabilities, recognition first.
func (g *Gate) Check(ctx context.Context) error {
	granted, err := g.resolve(ctx, capabilityRecognition, g.provider.AuthorizeRecognition)
	if err != nil {
		return err
	}
	if !granted {
		return domain.ErrNotAuthorizedToRecognize
	}

	granted, err = g.resolve(ctx, capabilityMicrophone, g.provider.AuthorizeMicrophone)
	if err != nil {
		return err
	}
	if !granted {
		return domain.ErrNotPermittedToRecord
	}
	return nil
}

func (g *Gate) resolve(ctx context.Context, c capability, query func(context.Context) (bool, error)) (bool, error) {
	if granted, ok := g.cached(c); ok {
		return granted, nil
	}

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s authorization: %w", c, err)
	}

	// The shared query outlives any one caller; each caller waits only as
	// long as its own context allows.
	queryCtx := context.WithoutCancel(ctx)
	results := g.group.DoChan(string(c), func() (any, error) {
		if granted, ok := g.cached(c); ok {
			return granted, nil
		}
		granted, err := query(queryCtx)
		if err != nil {
			return false, err
		}
		g.mu.Lock()
		g.answers[c] = granted
		g.mu.Unlock()
		g.log.Info().Str("capability", string(c)).Bool("granted", granted).Msg("authorization resolved")
		return granted, nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return false, fmt.Errorf("%s authorization: %w", c, res.Err)
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, fmt.Errorf("%s authorization: %w", c, ctx.Err())
	}
}

func (g *Gate) cached(c capability) (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	granted, ok := g.answers[c]
	if !ok {
		return false, false
	}
	if !granted && g.recheckDenied {
		return false, false
	}
	return granted, true
}
