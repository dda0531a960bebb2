package assistant

import (
	"context"

	"github.com/randalmurphal/auditflow/internal/agent"
	"github.com/randalmurphal/auditflow/pkg/flowgraph"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/stream"
)

// StatusError is the final stream status of a turn that failed.
const StatusError = "error"

// StreamEvent is one progress report of a streamed turn. Node events carry
// the merged step; the last event carries Status.
type StreamEvent struct {
	ThreadID string `json:"thread_id"`
	Node     string `json:"node,omitempty"`
	// Step is the label the node added, if any.
	Step string `json:"step,omitempty"`
	// Steps is the turn's trace so far.
	Steps         []string `json:"steps"`
	Response      string   `json:"response"`
	NeedsApproval bool     `json:"needs_approval"`
	// Status is set on the final event: completed, suspended or error.
	Status        string `json:"status,omitempty"`
	PendingAction string `json:"pending_action,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Stream starts a turn in the background and reports each merged step.
// The channel is closed when the turn ends. Events are dropped rather than
// delaying the workflow when the consumer falls behind; canceling ctx
// cancels the turn.
func (s *Service) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	req, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	em := stream.NewEmitter[StreamEvent](s.buffer)
	seen := 0
	observer := flowgraph.WithObserver(func(e flowgraph.Event[agent.State]) {
		if e.Kind != flowgraph.EventNode {
			return
		}
		steps := e.State.TurnSteps()
		ev := StreamEvent{
			ThreadID:      req.ThreadID,
			Node:          e.NodeID,
			Steps:         nonNil(append([]string(nil), steps...)),
			Response:      e.State.FinalResponse,
			NeedsApproval: e.State.NeedsApproval,
		}
		if len(steps) > seen {
			ev.Step = steps[len(steps)-1]
		}
		seen = len(steps)
		em.Emit(ev)
	})

	go func() {
		defer em.Close()

		result, err := s.start(ctx, req, observer)
		final := StreamEvent{ThreadID: req.ThreadID}
		if err != nil {
			final.Status = StatusError
			final.Error = err.Error()
			final.Steps = []string{}
		} else {
			resp := toResponse(result)
			final.Status = string(result.Status)
			final.Steps = resp.StepsTaken
			final.Response = resp.Response
			final.NeedsApproval = resp.RequiresHumanApproval
			final.PendingAction = resp.PendingAction
		}
		if !em.Emit(final) {
			s.logger.Warn("stream consumer too slow, final event dropped",
				"thread_id", req.ThreadID,
				"dropped", em.Dropped(),
			)
		}
	}()

	return em.Events(), nil
}
