package scrape

import "fmt"

// Stage names the pipeline step a fatal error came from.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageMarkup   Stage = "markup"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StagePersist  Stage = "persist"
)

// Error wraps a fatal pipeline failure with the stage that produced it.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) error {
	return &Error{Stage: stage, Err: err}
}
