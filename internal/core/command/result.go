package command

import "errors"

var ErrUnknownType = errors.New("unknown command type")

// Result is the outcome of dispatching or requesting a command. Expected
// refusals are results, not errors.
type Result uint8

const (
	Success Result = iota
	CancelledForUnknownReason
	InvalidSheetID
	InvalidFigureID
	TargetOutOfSheet
	EmptyUndoStack
	EmptyRedoStack
	WaitingSessionConfirmation
)

var resultNames = [...]string{
	Success:                    "Success",
	CancelledForUnknownReason:  "CancelledForUnknownReason",
	InvalidSheetID:             "InvalidSheetId",
	InvalidFigureID:            "InvalidFigureId",
	TargetOutOfSheet:           "TargetOutOfSheet",
	EmptyUndoStack:             "EmptyUndoStack",
	EmptyRedoStack:             "EmptyRedoStack",
	WaitingSessionConfirmation: "WaitingSessionConfirmation",
}

func (r Result) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "Unknown"
}

func (r Result) IsSuccess() bool { return r == Success }
