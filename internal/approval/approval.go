package approval

import (
	"context"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Decision is the outcome of an approval request.
type Decision struct {
	Approved bool
	Reason   string
}

// Approver decides whether an approval gate may open. ResolveGate may block
// until an operator answers; it must return when ctx is done.
type Approver interface {
	ResolveGate(ctx context.Context, gate sprint.ApprovalGate) (Decision, error)
}

// Func adapts a function to the Approver interface.
type Func func(ctx context.Context, gate sprint.ApprovalGate) (Decision, error)

// ResolveGate calls f(ctx, gate).
func (f Func) ResolveGate(ctx context.Context, gate sprint.ApprovalGate) (Decision, error) {
	return f(ctx, gate)
}

// AutoApprove returns an Approver that approves every gate.
func AutoApprove() Approver {
	return Func(func(context.Context, sprint.ApprovalGate) (Decision, error) {
		return Decision{Approved: true, Reason: "auto-approved"}, nil
	})
}

// AutoReject returns an Approver that rejects every gate with reason.
func AutoReject(reason string) Approver {
	if reason == "" {
		reason = "auto-rejected"
	}
	return Func(func(context.Context, sprint.ApprovalGate) (Decision, error) {
		return Decision{Approved: false, Reason: reason}, nil
	})
}
