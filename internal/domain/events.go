package domain

import (
	"context"
	"time"
)

// Transition is a batch-wide status change
type Transition string

const (
	TransitionAccept Transition = "accept"
	TransitionCancel Transition = "cancel"
)

// Target returns the status a successful transition leaves the batch in
func (t Transition) Target() LineItemStatus {
	if t == TransitionAccept {
		return StatusDelivered
	}
	return StatusCancelled
}

// TransitionRecord describes a committed transition for event recording
type TransitionRecord struct {
	Batch      *DistributionBatch
	Transition Transition
	From       LineItemStatus
	ChangedBy  string
	ChangedAt  time.Time
	Reason     string
}

// EventRecorder writes domain events. Implementations must join the
// transaction carried by ctx so that events commit with the state change.
type EventRecorder interface {
	RecordBatchCreated(ctx context.Context, batch *DistributionBatch) error
	RecordBatchTransitioned(ctx context.Context, record TransitionRecord) error
}
