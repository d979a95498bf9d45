// Package revocation coordinates forced logout: administrative block/delete
// flows clear the persisted session record first, then push a best-effort
// notification to any live connection. Persistence is the enforcement point;
// the push only improves latency for a connected device. A lost push is
// therefore acceptable, but never silent: it is logged as a push_failed event.
package revocation

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shelfward/shelfward-server/principals"
	"github.com/shelfward/shelfward-server/registry"
)

// Event is the wire form of a revocation push.
type Event struct {
	Name   registry.Kind `json:"name"`
	ID     string        `json:"id"`
	Reason string        `json:"reason,omitempty"`
}

// KindFor maps a principal role onto a registry kind.
func KindFor(role principals.RoleType) registry.Kind {
	if role == principals.RoleClient {
		return registry.KindClient
	}
	return registry.KindUser
}

// Coordinator is the single writer of the revocation path.
type Coordinator struct {
	principals principals.Repo
	registry   *registry.Registry
	log        zerolog.Logger
}

func NewCoordinator(repo principals.Repo, reg *registry.Registry, log zerolog.Logger) (*Coordinator, error) {
	if repo == nil {
		return nil, errors.New("[NewCoordinator] principals repo is required")
	}
	if reg == nil {
		return nil, errors.New("[NewCoordinator] registry is required")
	}
	return &Coordinator{principals: repo, registry: reg, log: log}, nil
}

// Revoke clears the principal's persisted session and, if a live connection
// is registered, pushes a revoke event through it. Ordering is mandatory:
// persistence completes before the push is attempted, so even a lost push
// leaves the session gate rejecting the next request. Persistence failures
// surface to the caller; push failures never do.
func (c *Coordinator) Revoke(ctx context.Context, kind registry.Kind, id, reason string) error {
	if err := c.principals.ClearSession(ctx, id); err != nil {
		return errors.Wrap(err, "[Coordinator.Revoke] ClearSession")
	}

	t, ok := c.registry.Lookup(kind, id)
	if !ok {
		return nil
	}

	msg, err := json.Marshal(Event{Name: kind, ID: id, Reason: reason})
	if err != nil {
		c.log.Error().Str("principal_id", id).Err(err).Msg("revocation event marshal failed")
		return nil
	}

	if err := t.Send(msg); err != nil {
		c.log.Warn().
			Str("event", "push_failed").
			Str("kind", string(kind)).
			Str("principal_id", id).
			Err(err).
			Msg("revocation push not delivered")
		// A dead handle is pruned, never retried.
		c.registry.Unregister(kind, id, t)
		_ = t.Close()
	}
	return nil
}
