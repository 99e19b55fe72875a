package envelope

// DomainContext describes the problem domain supplied with the task.
type DomainContext struct {
	Domain         string   `json:"domain" koanf:"domain"`
	ProcessAreas   []string `json:"process_areas" koanf:"process_areas"`
	ProblemContext string   `json:"problem_context" koanf:"problem_context"`
	InputContext   string   `json:"input_context" koanf:"input_context"`
	OutputContext  string   `json:"output_context" koanf:"output_context"`
	Constraints    []string `json:"constraints" koanf:"constraints"`
}

// Merge fills empty fields of d from the analysis refinement.
func (d DomainContext) Merge(a AnalysisDocument) DomainContext {
	out := d
	if out.Domain == "" {
		out.Domain = a.Domain
	}
	if len(out.ProcessAreas) == 0 {
		out.ProcessAreas = a.ProcessAreas
	}
	if out.ProblemContext == "" {
		out.ProblemContext = a.ProblemContext
	}
	if out.InputContext == "" {
		out.InputContext = a.InputContext
	}
	if out.OutputContext == "" {
		out.OutputContext = a.OutputContext
	}
	if len(out.Constraints) == 0 {
		out.Constraints = a.Constraints
	}
	return out
}

// InvocationContext is the read-only view handed to a stage invocation:
// the run configuration plus every non-stale upstream result.
type InvocationContext struct {
	RunID    string                `json:"run_id"`
	Task     string                `json:"task"`
	Domain   DomainContext         `json:"domain"`
	Attempt  int                   `json:"attempt"`
	Prior    map[Stage]StageResult `json:"prior"`
	Feedback *EvaluationDocument   `json:"feedback,omitempty"`
}

// PriorDocument returns the upstream document for stage, if present.
func (c InvocationContext) PriorDocument(stage Stage) (Document, bool) {
	r, ok := c.Prior[stage]
	if !ok {
		return nil, false
	}
	return r.Output, true
}

// Payload is the serialized form sent to a reasoning service.
type Payload struct {
	Stage    Stage               `json:"stage"`
	Task     string              `json:"task"`
	Domain   DomainContext       `json:"domain"`
	Attempt  int                 `json:"attempt"`
	Prior    map[Stage]Document  `json:"prior,omitempty"`
	Feedback *EvaluationDocument `json:"feedback,omitempty"`
}

// Payload flattens the context for stage into its wire form.
func (c InvocationContext) Payload(stage Stage) Payload {
	p := Payload{
		Stage:    stage,
		Task:     c.Task,
		Domain:   c.Domain,
		Attempt:  c.Attempt,
		Feedback: c.Feedback,
	}
	if len(c.Prior) > 0 {
		p.Prior = make(map[Stage]Document, len(c.Prior))
		for st, r := range c.Prior {
			p.Prior[st] = r.Output
		}
	}
	return p
}

// InvocationContext builds the context for the next execution of stage
// from the current, non-stale upstream results.
func (s *FlowState) InvocationContext(stage Stage, task string, domain DomainContext) InvocationContext {
	ctx := InvocationContext{
		RunID:   s.RunID,
		Task:    task,
		Domain:  domain,
		Attempt: s.iterationCount[stage] + 1,
		Prior:   make(map[Stage]StageResult, stage.Index()),
	}
	for _, st := range StageOrder[:max(stage.Index(), 0)] {
		if r, ok := s.results[st]; ok {
			ctx.Prior[st] = r
		}
	}
	if snap, ok := s.LastSnapshot(); ok {
		if ev, ok := snap.Evaluation(); ok {
			ctx.Feedback = &ev
		}
	}
	return ctx
}
