package model

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// Choice records which option a subject picked on a trial.
type Choice int

const (
	ChoiceSS Choice = 0 // smaller-sooner, option (r1, d1)
	ChoiceLL Choice = 1 // larger-later, option (r2, d2)
)

// String returns "ss" or "ll".
func (c Choice) String() string {
	switch c {
	case ChoiceSS:
		return "ss"
	case ChoiceLL:
		return "ll"
	default:
		return fmt.Sprintf("choice(%d)", int(c))
	}
}

// Trial is one binary intertemporal decision: r1 at delay d1 versus r2 at
// delay d2. Delays are in days.
type Trial struct {
	SSAmount float64 `json:"r1"`
	SSDelay  float64 `json:"d1"`
	LLAmount float64 `json:"r2"`
	LLDelay  float64 `json:"d2"`
	Choice   Choice  `json:"choice"`
}

// Trial field names as they appear in validation errors and table headers.
const (
	FieldSSAmount = "r1"
	FieldSSDelay  = "d1"
	FieldLLAmount = "r2"
	FieldLLDelay  = "d2"
	FieldChoice   = "choice"
)

// TrialColumns is the fixed column order of a trial table.
var TrialColumns = []string{FieldSSAmount, FieldSSDelay, FieldLLAmount, FieldLLDelay, FieldChoice}

// Validate checks the invariants of a single trial. row is only used to
// label the error.
func (t Trial) Validate(row int) error {
	for _, f := range []struct {
		name     string
		value    float64
		positive bool
	}{
		{FieldSSAmount, t.SSAmount, true},
		{FieldSSDelay, t.SSDelay, false},
		{FieldLLAmount, t.LLAmount, true},
		{FieldLLDelay, t.LLDelay, false},
	} {
		switch {
		case math.IsNaN(f.value) || math.IsInf(f.value, 0):
			return &ValidationError{Row: row, Field: f.name, Value: fmt.Sprint(f.value), Reason: "must be finite"}
		case f.positive && f.value <= 0:
			return &ValidationError{Row: row, Field: f.name, Value: fmt.Sprint(f.value), Reason: "reward must be positive"}
		case !f.positive && f.value < 0:
			return &ValidationError{Row: row, Field: f.name, Value: fmt.Sprint(f.value), Reason: "delay must be non-negative"}
		}
	}
	if t.Choice != ChoiceSS && t.Choice != ChoiceLL {
		return &ValidationError{Row: row, Field: FieldChoice, Value: fmt.Sprint(int(t.Choice)), Reason: "must be 0 or 1"}
	}
	return nil
}

// Trials is an ordered trial set. It is treated as read-only once loaded
// and may be shared across goroutines.
type Trials []Trial

// ErrEmptyTrials is returned when validating a trial set with no rows.
var ErrEmptyTrials = eris.New("model: trial set is empty")

// Validate checks every trial and returns the first violation, labelled
// with its 1-based row number.
func (ts Trials) Validate() error {
	if len(ts) == 0 {
		return ErrEmptyTrials
	}
	for i, t := range ts {
		if err := t.Validate(i + 1); err != nil {
			return err
		}
	}
	return nil
}

// CountLL returns the number of larger-later choices.
func (ts Trials) CountLL() int {
	n := 0
	for _, t := range ts {
		if t.Choice == ChoiceLL {
			n++
		}
	}
	return n
}

// ValidationError reports a malformed trial-table cell.
type ValidationError struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, field %s (%q): %s", e.Row, e.Field, e.Value, e.Reason)
}
