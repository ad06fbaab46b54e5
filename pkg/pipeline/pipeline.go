package pipeline

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/askiada/pipedef/pkg/pipeline/model"
)

// Pipeline is an immutable, validated pipeline description.
// Every accessor returns a copy, so a Pipeline can be shared freely between goroutines.
type Pipeline struct {
	id          string
	description string
	schedule    string
	catchup     bool
	defaults    model.Defaults
	cron        cron.Schedule

	steps      []model.Step
	index      map[string]int
	edges      []model.Edge
	order      []string
	upstream   map[string][]string
	downstream map[string][]string
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() string {
	return p.id
}

// Description returns the free text description.
func (p *Pipeline) Description() string {
	return p.description
}

// Schedule returns the cron expression, empty when the pipeline is only triggered externally.
func (p *Pipeline) Schedule() string {
	return p.schedule
}

// Catchup reports whether runs missed before a late start are backfilled.
func (p *Pipeline) Catchup() bool {
	return p.catchup
}

// Defaults returns the policy defaults.
func (p *Pipeline) Defaults() model.Defaults {
	return p.defaults.Clone()
}

// Steps returns the steps in declaration order.
func (p *Pipeline) Steps() []model.Step {
	res := make([]model.Step, len(p.steps))
	for i, step := range p.steps {
		res[i] = step.Clone()
	}

	return res
}

// Step returns the step with the given id.
func (p *Pipeline) Step(id string) (model.Step, bool) {
	idx, ok := p.index[id]
	if !ok {
		return model.Step{}, false
	}

	return p.steps[idx].Clone(), true
}

// Edges returns the dependency edges in declaration order.
func (p *Pipeline) Edges() []model.Edge {
	return append([]model.Edge(nil), p.edges...)
}

// TopologicalOrder returns step ids so that every step comes after its upstream steps.
// At each position the earliest declared step whose upstream steps are all placed comes next.
func (p *Pipeline) TopologicalOrder() []string {
	return append([]string(nil), p.order...)
}

// Upstream returns the steps id directly depends on.
func (p *Pipeline) Upstream(id string) []string {
	return append([]string(nil), p.upstream[id]...)
}

// Downstream returns the steps that directly depend on id.
func (p *Pipeline) Downstream(id string) []string {
	return append([]string(nil), p.downstream[id]...)
}

// EffectivePolicy returns the policy of a step with its override merged over the defaults.
func (p *Pipeline) EffectivePolicy(id string) (model.Policy, error) {
	idx, ok := p.index[id]
	if !ok {
		return model.Policy{}, errors.Wrapf(ErrUnknownStep, "step %q is not defined in pipeline %q", id, p.id)
	}

	return p.defaults.Apply(p.steps[idx].Policy), nil
}

// Connections returns the sorted, distinct connection identifiers referenced by the steps.
// The engine resolves them to credentials.
func (p *Pipeline) Connections() []string {
	seen := make(map[string]struct{})

	var res []string

	for _, step := range p.steps {
		if step.Spec == nil {
			continue
		}

		for _, conn := range step.Spec.Connections() {
			if _, ok := seen[conn]; ok {
				continue
			}

			seen[conn] = struct{}{}
			res = append(res, conn)
		}
	}

	sort.Strings(res)

	return res
}
