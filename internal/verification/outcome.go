package verification

import (
	"encoding/json"
	"fmt"
)

// Outcome is the tagged result of one check.
type Outcome int

const (
	NotPerformed Outcome = iota
	Passed
	Failed
)

var outcomeNames = map[Outcome]string{
	NotPerformed: "not_performed",
	Passed:       "passed",
	Failed:       "failed",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	for k, v := range outcomeNames {
		if v == string(b) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// CheckResult is the outcome of one check plus a human readable detail.
type CheckResult struct {
	Outcome Outcome
	Message string
}

func pass(msg string) CheckResult { return CheckResult{Outcome: Passed, Message: msg} }
func fail(msg string) CheckResult { return CheckResult{Outcome: Failed, Message: msg} }
func notPerformed(msg string) CheckResult { return CheckResult{Outcome: NotPerformed, Message: msg} }

// Passed reports whether the check ran and passed.
func (c CheckResult) Passed() bool { return c.Outcome == Passed }

// Summary renders the result for audit display, e.g. "Passed (IIT Delhi)".
func (c CheckResult) Summary() string {
	var label string
	switch c.Outcome {
	case Passed:
		label = "Passed"
	case Failed:
		label = "Failed"
	default:
		label = "Not Performed"
	}
	if c.Message == "" {
		return label
	}
	return label + " (" + c.Message + ")"
}

type checkResultJSON struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
	Summary string  `json:"summary"`
}

// MarshalJSON includes the rendered summary next to the structured fields.
func (c CheckResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(checkResultJSON{Outcome: c.Outcome, Message: c.Message, Summary: c.Summary()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CheckResult) UnmarshalJSON(b []byte) error {
	var v checkResultJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	c.Outcome, c.Message = v.Outcome, v.Message
	return nil
}
