package verify

// Result is the outcome of comparing expected and actual column lists.
type Result struct {
	OK bool `json:"ok"`
	// CountMismatch is set when the lists differ in length; Position is then 0.
	CountMismatch bool `json:"count_mismatch"`
	// Position is the 1-based index of the first differing column.
	Position int      `json:"position,omitempty"`
	Expected []string `json:"expected"`
	Actual   []string `json:"actual"`
}

// Compare checks counts first, then columns in order, stopping at the first
// difference.
func Compare(expected, actual []string) Result {
	r := Result{Expected: expected, Actual: actual}
	if len(expected) != len(actual) {
		r.CountMismatch = true
		return r
	}
	for i := range expected {
		if expected[i] != actual[i] {
			r.Position = i + 1
			return r
		}
	}
	r.OK = true
	return r
}

// ExpectedColumn is the column expected at the mismatch position.
func (r Result) ExpectedColumn() string {
	if r.Position < 1 || r.Position > len(r.Expected) {
		return ""
	}
	return r.Expected[r.Position-1]
}

// ActualColumn is the column found at the mismatch position.
func (r Result) ActualColumn() string {
	if r.Position < 1 || r.Position > len(r.Actual) {
		return ""
	}
	return r.Actual[r.Position-1]
}
