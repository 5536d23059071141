// Package audit records the control-plane commands accepted by the gateway.
package audit

import (
	"fmt"
	"time"

	"github.com/leakwatch/gateway/pkg/domain/shared"
)

// Record is one audited command. It is serialized into the task queue and
// persisted by the worker, so every field is exported.
type Record struct {
	ID           shared.ID    `json:"id"`
	Actor        string       `json:"actor"`
	ActorRole    string       `json:"actor_role"`
	ActorIP      string       `json:"actor_ip,omitempty"`
	Action       Action       `json:"action"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id,omitempty"`
	Result       Result       `json:"result"`
	Severity     Severity     `json:"severity"`
	Status       int          `json:"status"`
	Message      string       `json:"message,omitempty"`
	RequestID    string       `json:"request_id,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewRecord creates a record for an action against a resource.
func NewRecord(action Action, resourceType ResourceType, resourceID string, result Result, now time.Time) (*Record, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: invalid action", shared.ErrValidation)
	}
	if !resourceType.IsValid() {
		return nil, fmt.Errorf("%w: invalid resource type", shared.ErrValidation)
	}
	if !result.IsValid() {
		return nil, fmt.Errorf("%w: invalid result", shared.ErrValidation)
	}
	return &Record{
		ID:           shared.NewID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Result:       result,
		Severity:     SeverityForAction(action),
		Timestamp:    now.UTC(),
	}, nil
}

// WithActor sets who issued the command.
func (r *Record) WithActor(username, role, ip string) *Record {
	r.Actor = username
	r.ActorRole = role
	r.ActorIP = ip
	return r
}

// WithOutcome sets the authority's status and message.
func (r *Record) WithOutcome(status int, message string) *Record {
	r.Status = status
	r.Message = message
	return r
}

// WithRequestID sets the tracing id.
func (r *Record) WithRequestID(id string) *Record {
	r.RequestID = id
	return r
}
