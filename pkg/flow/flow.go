// Package flow parses and validates flow documents.
//
// A flow is the static plan of one task: an optional pre-stage, an ordered
// list of stages and a map of step definitions that stages reference by id.
// A parsed Flow is never mutated and is shared by every case of the task.
package flow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/chord/pkg/errors"
)

const (
	// DefaultConcurrency is the number of cases dispatched together when a
	// stage does not set concurrency.
	DefaultConcurrency = 10

	// DefaultRound is the number of passes over the case data.
	DefaultRound = 1

	// DefaultStageDuration bounds a stage's round loop.
	DefaultStageDuration = 600 * time.Second

	// DefaultStepTimeout bounds a single action run.
	DefaultStepTimeout = 5 * time.Second

	// BreakOnStageFail stops the task after a stage that ended in Fail.
	BreakOnStageFail = "stage_fail"
)

// Flow is the parsed plan of a task.
type Flow struct {
	// Version is informational
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Def is constant data available to templates as def.*
	Def map[string]interface{} `yaml:"def,omitempty" json:"def,omitempty"`

	// Pre is the optional row-less bootstrap step list
	Pre *Pre `yaml:"pre,omitempty" json:"pre,omitempty"`

	// Stages run in declaration order
	Stages []Stage `yaml:"stage" json:"stage" validate:"required,min=1,dive"`

	// Steps holds every step definition keyed by step id
	Steps map[string]*Step `yaml:"step" json:"step" validate:"required,min=1,dive"`

	stepOrder []string
}

// Pre declares the pre-stage.
type Pre struct {
	Steps []string `yaml:"step" json:"step" validate:"required,min=1,dive,identifier"`
}

// Stage is one phase of a flow.
type Stage struct {
	ID string `yaml:"id" json:"id" validate:"required,identifier"`

	// Concurrency is the batch size and the parallelism bound
	Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty" validate:"gte=0"`

	// Round is the number of passes over the data; 0 means unbounded.
	// A nil Round takes DefaultRound.
	Round *int `yaml:"round,omitempty" json:"round,omitempty" validate:"omitempty,gte=0"`

	// Duration is the deadline of the whole round loop
	Duration Duration `yaml:"duration,omitempty" json:"duration,omitempty"`

	// BreakOn is empty or "stage_fail"
	BreakOn string `yaml:"break_on,omitempty" json:"break_on,omitempty" validate:"omitempty,oneof=stage_fail"`

	// CaseFilter is a condition rendered with the row bound as case
	CaseFilter string `yaml:"case_filter,omitempty" json:"case_filter,omitempty"`

	Steps []string `yaml:"step" json:"step" validate:"required,min=1,dive,identifier"`
}

// Step is one templated action invocation.
type Step struct {
	// ID is filled from the key in the step map
	ID string `yaml:"-" json:"-"`

	// Action is the registered kind of the action
	Action string `yaml:"action" json:"action" validate:"required"`

	// Config is the template-bearing action configuration
	Config interface{} `yaml:"config,omitempty" json:"config,omitempty"`

	// Assert is an optional condition evaluated against the result (bound as res)
	Assert string `yaml:"assert,omitempty" json:"assert,omitempty"`

	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Dyn registers the result under dyn.<Dyn> when set
	Dyn string `yaml:"dyn,omitempty" json:"dyn,omitempty" validate:"omitempty,identifier"`
}

// Load reads and parses the flow file at path.
func Load(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "flow", ID: path}
		}
		return nil, &errors.ConfigError{Key: "flow", Reason: fmt.Sprintf("failed to read %s", path), Cause: err}
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) flow document, checks it against the
// embedded schema, applies defaults and validates references.
func Parse(data []byte) (*Flow, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &errors.ConfigError{Key: "flow", Reason: "failed to parse flow document", Cause: err}
	}
	if err := validateSchema(doc); err != nil {
		return nil, &errors.ConfigError{Key: "flow", Reason: "flow does not match schema", Cause: err}
	}

	var f Flow
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &errors.ConfigError{Key: "flow", Reason: "failed to decode flow", Cause: err}
	}
	f.applyDefaults()

	if err := f.Validate(); err != nil {
		return nil, &errors.ConfigError{Key: "flow", Reason: "invalid flow definition", Cause: err}
	}
	return &f, nil
}

func (f *Flow) applyDefaults() {
	for id, s := range f.Steps {
		if s == nil {
			continue
		}
		s.ID = id
		if s.Timeout == 0 {
			s.Timeout = Duration(DefaultStepTimeout)
		}
	}
	for i := range f.Stages {
		s := &f.Stages[i]
		if s.Concurrency == 0 {
			s.Concurrency = DefaultConcurrency
		}
		if s.Round == nil {
			r := DefaultRound
			s.Round = &r
		}
		if s.Duration == 0 {
			s.Duration = Duration(DefaultStageDuration)
		}
	}
	f.stepOrder = f.collectStepOrder()
}

// collectStepOrder lists every step referenced by a stage, first reference
// first, without duplicates.
func (f *Flow) collectStepOrder() []string {
	seen := make(map[string]bool)
	var order []string
	for _, s := range f.Stages {
		for _, id := range s.Steps {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}
	return order
}

// StageIDs returns the stage ids in run order.
func (f *Flow) StageIDs() []string {
	ids := make([]string, len(f.Stages))
	for i, s := range f.Stages {
		ids[i] = s.ID
	}
	return ids
}

// Stage returns the stage with the given id.
func (f *Flow) Stage(id string) (*Stage, bool) {
	for i := range f.Stages {
		if f.Stages[i].ID == id {
			return &f.Stages[i], true
		}
	}
	return nil, false
}

// Step returns the step definition with the given id.
func (f *Flow) Step(id string) (*Step, bool) {
	s, ok := f.Steps[id]
	return s, ok && s != nil
}

// PreSteps returns the pre-stage step ids, or nil when there is no pre-stage.
func (f *Flow) PreSteps() []string {
	if f.Pre == nil {
		return nil
	}
	return f.Pre.Steps
}

// StageStepIDs returns the step ids referenced by stages in first-reference
// order. Reporters use it to lay out per-step columns.
func (f *Flow) StageStepIDs() []string {
	if f.stepOrder == nil {
		return f.collectStepOrder()
	}
	return f.stepOrder
}

// RoundLimit returns the number of rounds; 0 means unbounded.
func (s *Stage) RoundLimit() int {
	if s.Round == nil {
		return DefaultRound
	}
	return *s.Round
}

// BreaksOnFail reports whether a Fail outcome of this stage skips the
// remaining stages.
func (s *Stage) BreaksOnFail() bool {
	return s.BreakOn == BreakOnStageFail
}
