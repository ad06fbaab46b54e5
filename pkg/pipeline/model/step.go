package model

// Step is a single named unit of work within a pipeline.
type Step struct {
	ID     string
	Kind   Kind
	Params Params
	// Spec is the decoded form of Params.
	Spec   ParamSpec
	Policy *PolicyOverride
}

// Clone returns a copy of s that shares no mutable state with it.
func (s Step) Clone() Step {
	s.Params = s.Params.Clone()
	s.Policy = s.Policy.Clone()

	switch spec := s.Spec.(type) {
	case TransferDataParams:
		spec.FormatOptions = cloneStrings(spec.FormatOptions)
		s.Spec = spec
	case RunFunctionParams:
		spec.Args = Params(spec.Args).Clone()
		s.Spec = spec
	}

	return s
}

// Edge is a dependency: To may not start until From has completed successfully.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}
