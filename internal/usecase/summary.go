package usecase

import (
	"errors"
	"time"
)

// ErrAllRepositoriesFailed is returned when no repository could be collected.
var ErrAllRepositoriesFailed = errors.New("every repository failed to collect")

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// StepResult records what happened to one step.
type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// RunSummary reports every step of a run, including the ones skipped.
type RunSummary struct {
	RunID              string       `json:"run_id"`
	StartedAt          time.Time    `json:"started_at"`
	FinishedAt         time.Time    `json:"finished_at"`
	Since              string       `json:"since"`
	Until              string       `json:"until"`
	Repositories       []string     `json:"repositories"`
	FailedRepositories []string     `json:"failed_repositories"`
	Records            int          `json:"records"`
	DroppedRecords     int          `json:"dropped_records"`
	Steps              []StepResult `json:"steps"`
}

func (s *RunSummary) succeed(name, detail string) { s.add(name, StepSucceeded, detail) }
func (s *RunSummary) skip(name, detail string)    { s.add(name, StepSkipped, detail) }
func (s *RunSummary) fail(name, detail string)    { s.add(name, StepFailed, detail) }

func (s *RunSummary) add(name string, status StepStatus, detail string) {
	s.Steps = append(s.Steps, StepResult{Name: name, Status: status, Detail: detail})
}

// Step returns the result of the named step.
func (s *RunSummary) Step(name string) (StepResult, bool) {
	for _, step := range s.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return StepResult{}, false
}
