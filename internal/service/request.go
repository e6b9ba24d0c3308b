package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "go-background-remover/internal/errors"
	"go-background-remover/internal/observer"
)

// next lists the only forward transition out of each non-terminal stage.
// Any non-terminal stage may also move to ERRORED.
var next = map[observer.Stage]observer.Stage{
	observer.StageReceived:  observer.StageValidated,
	observer.StageValidated: observer.StageDecoded,
	observer.StageDecoded:   observer.StageSegmented,
	observer.StageSegmented: observer.StageEncoded,
	observer.StageEncoded:   observer.StageResponded,
}

// Request tracks one background removal call through its lifecycle.
// It is owned by a single handler goroutine and is not safe for concurrent use.
type Request struct {
	ID string

	ctx       context.Context
	publisher observer.Subject
	stage     observer.Stage
	started   time.Time
	err       *apperrors.AppError
}

func newRequest(ctx context.Context, id string, publisher observer.Subject) *Request {
	r := &Request{
		ID:        id,
		ctx:       ctx,
		publisher: publisher,
		stage:     observer.StageReceived,
		started:   time.Now(),
	}
	r.publish(observer.RequestEvent{Stage: observer.StageReceived})
	return r
}

// Stage is the current lifecycle stage.
func (r *Request) Stage() observer.Stage {
	return r.stage
}

// Err is the failure the request ended in, if any.
func (r *Request) Err() *apperrors.AppError {
	return r.err
}

// Elapsed is the wall time since the request was received.
func (r *Request) Elapsed() time.Duration {
	return time.Since(r.started)
}

// Advance moves the request to stage. Only the single forward step from the
// current stage is accepted.
func (r *Request) Advance(stage observer.Stage, metadata map[string]interface{}) error {
	if want, ok := next[r.stage]; !ok || want != stage {
		return fmt.Errorf("illegal request transition %s -> %s", r.stage, stage)
	}

	event := observer.RequestEvent{Stage: stage, From: r.stage, Metadata: metadata}
	if stage == observer.StageResponded {
		event.StatusCode = http.StatusOK
	}
	r.stage = stage
	r.publish(event)
	return nil
}

// Fail moves the request to ERRORED with appErr. A request that already
// reached a terminal stage keeps its first outcome.
func (r *Request) Fail(appErr *apperrors.AppError) *apperrors.AppError {
	if r.stage.Terminal() {
		if r.err != nil {
			return r.err
		}
		return appErr
	}

	from := r.stage
	r.stage = observer.StageErrored
	r.err = appErr

	event := observer.RequestEvent{
		Stage:      observer.StageErrored,
		From:       from,
		StatusCode: appErr.StatusCode,
		ErrorType:  string(appErr.Type),
		Error:      appErr.Error(),
	}
	r.publish(event)
	return appErr
}

func (r *Request) publish(event observer.RequestEvent) {
	if r.publisher == nil {
		return
	}
	event.RequestID = r.ID
	event.Timestamp = time.Now()
	event.Elapsed = r.Elapsed()
	r.publisher.NotifyObservers(r.ctx, event)
}
