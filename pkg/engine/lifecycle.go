package engine

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/weavebit/loom/pkg/models"
)

const (
	triggerStart    = "start"
	triggerComplete = "complete"
	triggerFail     = "fail"
	triggerCancel   = "cancel"
	triggerPause    = "pause"
	triggerResume   = "resume"
)

// lifecycle is the status state machine of one execution. Transitions are
// monotonic; pause/resume is the only legal way back into running. Every
// entered state invokes onChange, which persists the status and publishes
// the matching lifecycle event.
type lifecycle struct {
	fsm *stateless.StateMachine
}

func newLifecycle(onChange func(status models.ExecutionStatus)) *lifecycle {
	fsm := stateless.NewStateMachine(models.ExecutionStatusPending)

	entry := func(status models.ExecutionStatus) func(context.Context, ...any) error {
		return func(context.Context, ...any) error {
			onChange(status)

			return nil
		}
	}

	fsm.Configure(models.ExecutionStatusPending).
		Permit(triggerStart, models.ExecutionStatusRunning).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	fsm.Configure(models.ExecutionStatusRunning).
		OnEntry(entry(models.ExecutionStatusRunning)).
		Permit(triggerComplete, models.ExecutionStatusCompleted).
		Permit(triggerFail, models.ExecutionStatusFailed).
		Permit(triggerCancel, models.ExecutionStatusCancelled).
		Permit(triggerPause, models.ExecutionStatusPaused)

	fsm.Configure(models.ExecutionStatusPaused).
		OnEntry(entry(models.ExecutionStatusPaused)).
		Permit(triggerResume, models.ExecutionStatusRunning).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	fsm.Configure(models.ExecutionStatusCompleted).
		OnEntry(entry(models.ExecutionStatusCompleted))

	fsm.Configure(models.ExecutionStatusFailed).
		OnEntry(entry(models.ExecutionStatusFailed))

	fsm.Configure(models.ExecutionStatusCancelled).
		OnEntry(entry(models.ExecutionStatusCancelled))

	return &lifecycle{fsm: fsm}
}

func (l *lifecycle) Status() models.ExecutionStatus {
	return l.fsm.MustState().(models.ExecutionStatus)
}

func (l *lifecycle) Start() error    { return l.fsm.Fire(triggerStart) }
func (l *lifecycle) Complete() error { return l.fsm.Fire(triggerComplete) }
func (l *lifecycle) Fail() error     { return l.fsm.Fire(triggerFail) }
func (l *lifecycle) Cancel() error   { return l.fsm.Fire(triggerCancel) }
func (l *lifecycle) Pause() error    { return l.fsm.Fire(triggerPause) }
func (l *lifecycle) Resume() error   { return l.fsm.Fire(triggerResume) }
