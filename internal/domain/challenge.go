package domain

// ProblemStatement is the practice challenge attached to a lesson.
type ProblemStatement struct {
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description" yaml:"description"`
	Requirements []string `json:"requirements" yaml:"requirements"`
	Hints        []string `json:"hints,omitempty" yaml:"hints,omitempty"`
	HintIndex    int      `json:"-" yaml:"-"`
}

// NextHint returns the next available hint for the problem.
// Returns empty string if no more hints are available.
func (p *ProblemStatement) NextHint() string {
	if p.HintIndex >= len(p.Hints) {
		return ""
	}
	hint := p.Hints[p.HintIndex]
	p.HintIndex++
	return hint
}

// HasHints returns true if there are hints remaining.
func (p *ProblemStatement) HasHints() bool {
	return p.HintIndex < len(p.Hints)
}

// Text renders the statement for the validator boundary: title and
// description followed by the ordered requirement list.
func (p *ProblemStatement) Text() string {
	out := p.Title + "\n\n" + p.Description
	for _, r := range p.Requirements {
		out += "\n- " + r
	}
	return out
}
