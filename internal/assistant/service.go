// Package assistant is the caller-facing surface of the audit assistant:
// start a turn, stream its progress, record a reviewer decision and read
// a thread's committed status.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/auditflow/internal/agent"
	"github.com/randalmurphal/auditflow/pkg/flowgraph"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/stream"
)

// DefaultReviewer is recorded when an approval names no reviewer.
const DefaultReviewer = "Auditor"

// ErrInvalidRequest is wrapped by every input validation failure. Nothing
// is persisted when it is returned.
var ErrInvalidRequest = errors.New("invalid request")

// Graph is the compiled assistant workflow.
type Graph = flowgraph.CompiledGraph[agent.State, agent.Update]

// Request starts a turn.
type Request struct {
	Message string `json:"message"`
	// ThreadID selects the conversation. Empty starts a new one.
	ThreadID string `json:"thread_id,omitempty"`
	// NewSession drops the thread's history and any pending approval.
	NewSession bool `json:"new_session,omitempty"`
}

// Response is the outcome of a turn or of a decision.
type Response struct {
	Response   string   `json:"response"`
	ThreadID   string   `json:"thread_id"`
	StepsTaken []string `json:"steps_taken"`
	Sources    []string `json:"sources"`
	// RequiresHumanApproval is set while the thread waits for a reviewer.
	RequiresHumanApproval bool `json:"requires_human_approval"`
	// PendingAction is the reviewer prompt while suspended.
	PendingAction string `json:"pending_action,omitempty"`
}

// ApprovalRequest resolves a pending approval.
type ApprovalRequest struct {
	ThreadID string `json:"thread_id"`
	// Decision is "approved" or "rejected".
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer,omitempty"`
}

// ApprovalResponse reports the resumed run.
type ApprovalResponse struct {
	Status     string   `json:"status"`
	Decision   string   `json:"decision"`
	Response   string   `json:"response"`
	Reviewer   string   `json:"reviewer"`
	ThreadID   string   `json:"thread_id"`
	StepsTaken []string `json:"steps_taken"`
}

// ThreadStatus is the committed view of a thread.
type ThreadStatus struct {
	ThreadID      string    `json:"thread_id"`
	Status        string    `json:"status"`
	Turn          int       `json:"turn"`
	StepsTaken    []string  `json:"steps_taken"`
	Sources       []string  `json:"sources"`
	Response      string    `json:"response"`
	NeedsApproval bool      `json:"needs_approval"`
	PendingAction string    `json:"pending_action,omitempty"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ThreadInfo summarizes a stored thread.
type ThreadInfo struct {
	ThreadID  string    `json:"thread_id"`
	UpdatedAt time.Time `json:"updated_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Service runs the assistant workflow against a checkpoint store.
// It is safe for concurrent use; turns on one thread are serialized by the
// graph.
type Service struct {
	graph   *Graph
	store   checkpoint.Store
	runOpts []flowgraph.RunOption
	buffer  int
	logger  *slog.Logger
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithRunOptions applies opts to every advance.
func WithRunOptions(opts ...flowgraph.RunOption) Option {
	return func(s *Service) {
		s.runOpts = append(s.runOpts, opts...)
	}
}

// WithStreamBuffer sets the per-stream event buffer.
func WithStreamBuffer(n int) Option {
	return func(s *Service) {
		s.buffer = n
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the thread id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New creates a Service.
func New(graph *Graph, store checkpoint.Store, opts ...Option) *Service {
	s := &Service{
		graph:  graph,
		store:  store,
		buffer: stream.DefaultBuffer,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) prepare(req Request) (Request, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return req, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	if req.ThreadID == "" {
		req.ThreadID = s.newID()
	}
	return req, nil
}

func (s *Service) start(ctx context.Context, req Request, extra ...flowgraph.RunOption) (flowgraph.Result[agent.State], error) {
	opts := append(append([]flowgraph.RunOption(nil), s.runOpts...), extra...)
	if req.NewSession {
		opts = append(opts, flowgraph.WithDiscardPending())
	}
	return s.graph.Start(ctx, s.store, req.ThreadID,
		agent.NewTurn(req.ThreadID, req.Message, req.NewSession), opts...)
}

// Invoke runs one turn until it completes or waits for approval.
func (s *Service) Invoke(ctx context.Context, req Request) (Response, error) {
	req, err := s.prepare(req)
	if err != nil {
		return Response{}, err
	}

	result, err := s.start(ctx, req)
	if err != nil {
		return Response{}, err
	}

	s.logger.Info("turn finished",
		slog.String("thread_id", req.ThreadID),
		slog.String("status", string(result.Status)),
	)
	return toResponse(result), nil
}

// Approve records a reviewer decision on a suspended thread and runs the
// workflow to completion.
func (s *Service) Approve(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		return ApprovalResponse{}, fmt.Errorf("%w: thread_id is required", ErrInvalidRequest)
	}
	verdict, err := interrupt.ParseVerdict(req.Decision)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	reviewer := strings.TrimSpace(req.Reviewer)
	if reviewer == "" {
		reviewer = DefaultReviewer
	}

	result, err := s.graph.Resume(ctx, s.store, threadID, interrupt.NewDecision(verdict, reviewer), s.runOpts...)
	if err != nil {
		return ApprovalResponse{}, err
	}

	s.logger.Info("decision applied",
		slog.String("thread_id", threadID),
		slog.String("verdict", string(verdict)),
		slog.String("reviewer", reviewer),
	)
	return ApprovalResponse{
		Status:     "resumed",
		Decision:   string(verdict),
		Response:   result.State.FinalResponse,
		Reviewer:   reviewer,
		ThreadID:   threadID,
		StepsTaken: nonNil(result.State.TurnSteps()),
	}, nil
}

// Status returns the committed view of a thread.
func (s *Service) Status(ctx context.Context, threadID string) (ThreadStatus, error) {
	if strings.TrimSpace(threadID) == "" {
		return ThreadStatus{}, fmt.Errorf("%w: thread_id is required", ErrInvalidRequest)
	}

	snap, err := s.graph.Inspect(ctx, s.store, threadID)
	if err != nil {
		return ThreadStatus{}, err
	}

	st := ThreadStatus{
		ThreadID:      threadID,
		Status:        string(snap.Status),
		Turn:          snap.State.Turn,
		StepsTaken:    nonNil(snap.State.TurnSteps()),
		Sources:       nonNil(snap.State.Sources),
		Response:      snap.State.FinalResponse,
		NeedsApproval: snap.State.NeedsApproval,
		Error:         snap.Error,
		UpdatedAt:     snap.UpdatedAt,
	}
	if snap.Suspended() {
		st.PendingAction = snap.Interrupt.Prompt
	}
	return st, nil
}

// Threads lists stored threads, most recently updated first.
func (s *Service) Threads(ctx context.Context) ([]ThreadInfo, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make([]ThreadInfo, len(infos))
	for i, info := range infos {
		threads[i] = ThreadInfo{
			ThreadID:  info.ThreadID,
			UpdatedAt: info.Timestamp,
			SizeBytes: info.Size,
		}
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

func toResponse(result flowgraph.Result[agent.State]) Response {
	resp := Response{
		Response:              result.State.FinalResponse,
		ThreadID:              result.ThreadID,
		StepsTaken:            nonNil(result.State.TurnSteps()),
		Sources:               nonNil(result.State.Sources),
		RequiresHumanApproval: result.Suspended(),
	}
	if result.Suspended() && result.Interrupt != nil {
		resp.PendingAction = result.Interrupt.Prompt
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
