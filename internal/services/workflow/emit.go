package workflow

import (
	"context"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

// emit publishes a committed transition. The state change is already
// durable, so sink failures are logged and swallowed.
func (e *Engine) emit(ctx context.Context, a domain.Audit, c domain.StateChange) {
	e.metrics.Transition(string(c.From), string(c.To), string(c.Kind))
	e.logger.Printf("audit %s: %s -> %s (%s by %s)", a.ID, c.From, c.To, c.Kind, c.ActorName)

	payload := map[string]any{
		"from_state": string(c.From),
		"to_state":   string(c.To),
		"kind":       string(c.Kind),
		"actor_id":   c.ActorID,
		"actor_name": c.ActorName,
	}
	if c.Justification != "" {
		payload["justification"] = c.Justification
	}
	if len(c.Conditions) > 0 {
		payload["conditions"] = c.Conditions
	}

	if e.notify != nil {
		n := ports.Notification{
			AuditID:    a.ID,
			EventType:  ports.EventStateChanged,
			Recipients: recipients(a),
			Payload:    payload,
			At:         c.At,
		}
		if err := e.notify.Notify(ctx, n); err != nil {
			e.logger.Printf("audit %s: notify: %v", a.ID, err)
		}
	}
	if e.trail != nil {
		entry := domain.TrailEntry{
			ActorID:    c.ActorID,
			ActorName:  c.ActorName,
			Action:     "audit.transition." + string(c.Kind),
			EntityType: "audit",
			EntityID:   a.ID,
			Before:     map[string]any{"state": string(c.From)},
			After:      payload,
			At:         c.At,
		}
		if err := e.trail.RecordTrail(ctx, entry); err != nil {
			e.logger.Printf("audit %s: trail: %v", a.ID, err)
		}
	}
}

// recipients are the assigned auditor and the provider, when known.
func recipients(a domain.Audit) []string {
	var out []string
	if a.AuditorID != nil && *a.AuditorID != "" {
		out = append(out, "user:"+*a.AuditorID)
	}
	if a.ProviderID != "" {
		out = append(out, "provider:"+a.ProviderID)
	}
	return out
}
