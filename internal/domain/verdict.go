package domain

// Verdict is the validator's judgment of submitted code against a problem
// statement. The progression core only consumes Valid; the diagnostic
// fields are surfaced to the learner unchanged.
type Verdict struct {
	Valid         bool     `json:"valid"`
	SyntaxCorrect bool     `json:"syntax_correct"`
	Compilable    bool     `json:"compilable"`
	ErrorText     string   `json:"error,omitempty"`
	Score         *float64 `json:"score,omitempty"`
}
