package bpred

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"go.uber.org/zap"
)

// Hook positions invoked by predictors. The hook item is always an Event.
var (
	HookPosLookup        = &sim.HookPos{Name: "BranchPredictor.Lookup"}
	HookPosUnconditional = &sim.HookPos{Name: "BranchPredictor.Unconditional"}
	HookPosInvalidTarget = &sim.HookPos{Name: "BranchPredictor.InvalidTarget"}
	HookPosResolve       = &sim.HookPos{Name: "BranchPredictor.Resolve"}
	HookPosSquash        = &sim.HookPos{Name: "BranchPredictor.Squash"}
)

// Event describes one predictor operation.
type Event struct {
	TID    ThreadID
	PC     uint64
	Handle Handle

	// Index is the counter consulted or trained. It is unset for squashes
	// and invalid-target notices.
	Index uint64
	// Counter is the value of counter Index after the operation.
	Counter uint8

	// Taken is the predicted direction for lookups and the actual direction
	// for resolutions.
	Taken    bool
	Squashed bool

	HistoryBefore uint64
	HistoryAfter  uint64
}

// LogHook writes every predictor event to a zap logger at debug level.
type LogHook struct {
	logger *zap.Logger
}

// NewLogHook creates a LogHook writing to logger.
func NewLogHook(logger *zap.Logger) *LogHook {
	return &LogHook{logger: logger}
}

// Func implements sim.Hook.
func (h *LogHook) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	if ce := h.logger.Check(zap.DebugLevel, ctx.Pos.Name); ce != nil {
		ce.Write(
			zap.Int("tid", int(evt.TID)),
			zap.String("pc", fmt.Sprintf("%#x", evt.PC)),
			zap.Stringer("handle", evt.Handle),
			zap.Uint64("index", evt.Index),
			zap.Uint8("counter", evt.Counter),
			zap.Bool("taken", evt.Taken),
			zap.Bool("squashed", evt.Squashed),
			zap.String("history_before", fmt.Sprintf("%#b", evt.HistoryBefore)),
			zap.String("history_after", fmt.Sprintf("%#b", evt.HistoryAfter)),
		)
	}
}
