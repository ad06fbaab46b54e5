package pipeline

import (
	"regexp"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/pipedef/internal/store"
	"github.com/askiada/pipedef/pkg/pipeline/model"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.Wrapf(ErrInvalidID, "%q must match %s", id, idPattern.String())
	}

	return nil
}

func stepHash(s model.Step) string {
	return s.ID
}

// Builder validates and assembles a Pipeline from step definitions and dependency declarations.
//
// A call that fails leaves the builder unchanged, so the caller may fix its input and retry.
// A Builder is not safe for concurrent use.
type Builder struct {
	id          string
	description string
	schedule    string
	catchup     bool
	defaults    model.Defaults

	store *store.MemoryStore[string, model.Step]
	graph graph.Graph[string, model.Step]
}

// NewBuilder creates a builder for the pipeline id.
// It fails if the id is malformed, the schedule does not parse or the defaults are out of range.
func NewBuilder(id string, opts ...BuilderOption) (*Builder, error) {
	err := validateID(id)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline builder")
	}

	bld := &Builder{id: id}
	for _, opt := range opts {
		opt(bld)
	}

	_, err = parseSchedule(bld.schedule)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", id)
	}

	err = bld.defaults.Validate()
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q defaults", id)
	}

	bld.store = store.NewMemoryStore[string, model.Step]()
	bld.graph = graph.NewWithStore(stepHash, graph.Store[string, model.Step](bld.store), graph.Directed(), graph.Acyclic())

	return bld, nil
}

// DefineStep adds a step of the given kind. The returned step is a copy; changing it does not
// affect the pipeline.
func (b *Builder) DefineStep(kind model.Kind, id string, params model.Params, opts ...StepOption) (model.Step, error) {
	err := validateID(id)
	if err != nil {
		return model.Step{}, errors.Wrap(err, "unable to define step")
	}

	if _, _, err := b.store.Vertex(id); err == nil {
		return model.Step{}, errors.Wrapf(ErrDuplicateID, "step %q already defined in pipeline %q", id, b.id)
	}

	// Spec is decoded from its own copy so it shares no nested maps with Params or the caller.
	spec, err := model.DecodeParams(kind, params.Clone())
	if err != nil {
		var paramsErr *model.ParamsError
		if !errors.As(err, &paramsErr) {
			return model.Step{}, errors.Wrapf(err, "unable to decode params of step %q", id)
		}

		return model.Step{}, &InvalidParamsError{StepID: id, Kind: kind, Problems: paramsErr.Problems, cause: err}
	}

	step := model.Step{
		ID:     id,
		Kind:   kind,
		Params: params.Clone(),
		Spec:   spec,
	}
	for _, opt := range opts {
		opt(&step)
	}

	if step.Policy != nil {
		err = step.Policy.Validate()
		if err != nil {
			return model.Step{}, errors.Wrapf(err, "step %q policy override", id)
		}
	}

	err = b.graph.AddVertex(step, graph.VertexAttribute("kind", kind.String()))
	if err != nil {
		return model.Step{}, errors.Wrapf(err, "unable to add step %q", id)
	}

	return step.Clone(), nil
}

// DeclareDependency makes downstream wait for upstream. Declaring an existing edge again is a no-op.
func (b *Builder) DeclareDependency(upstream, downstream string) error {
	for _, id := range []string{upstream, downstream} {
		if _, _, err := b.store.Vertex(id); err != nil {
			return errors.Wrapf(ErrUnknownStep, "step %q is not defined in pipeline %q", id, b.id)
		}
	}

	if _, err := b.store.Edge(upstream, downstream); err == nil {
		return nil
	}

	cycle, err := b.store.CreatesCycle(upstream, downstream)
	if err != nil {
		return errors.Wrap(err, "unable to check for cycles")
	}

	if cycle {
		return &CycleError{
			Upstream:   upstream,
			Downstream: downstream,
			Path:       b.store.Path(downstream, upstream),
		}
	}

	err = b.graph.AddEdge(upstream, downstream)
	if err != nil {
		return errors.Wrapf(err, "unable to add dependency %s -> %s", upstream, downstream)
	}

	return nil
}

// Chain declares ids[i] -> ids[i+1] for every consecutive pair. It stops at the first failure;
// edges declared before it are kept.
func (b *Builder) Chain(ids ...string) error {
	for i := 1; i < len(ids); i++ {
		err := b.DeclareDependency(ids[i-1], ids[i])
		if err != nil {
			return err
		}
	}

	return nil
}

// Build returns an immutable snapshot of the description. The builder may be used afterwards;
// later changes do not affect pipelines already built.
func (b *Builder) Build() (*Pipeline, error) {
	count, err := b.graph.Order()
	if err != nil {
		return nil, errors.Wrap(err, "unable to count steps")
	}

	if count == 0 {
		return nil, errors.Wrapf(ErrEmptyPipeline, "pipeline %q", b.id)
	}

	ids, err := b.store.ListVertices()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list steps")
	}

	pipe := &Pipeline{
		id:          b.id,
		description: b.description,
		schedule:    b.schedule,
		catchup:     b.catchup,
		defaults:    b.defaults.Clone(),
		steps:       make([]model.Step, 0, len(ids)),
		index:       make(map[string]int, len(ids)),
		upstream:    make(map[string][]string, len(ids)),
		downstream:  make(map[string][]string, len(ids)),
	}

	pipe.cron, err = parseSchedule(b.schedule)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", b.id)
	}

	for _, id := range ids {
		step, err := b.graph.Vertex(id)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to get step %q", id)
		}

		pipe.index[id] = len(pipe.steps)
		pipe.steps = append(pipe.steps, step.Clone())
		pipe.upstream[id] = b.store.Predecessors(id)
		pipe.downstream[id] = b.store.Successors(id)
	}

	edges, err := b.store.ListEdges()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list dependencies")
	}

	pipe.edges = make([]model.Edge, 0, len(edges))
	for _, e := range edges {
		pipe.edges = append(pipe.edges, model.Edge{From: e.Source, To: e.Target})
	}

	pipe.order = declarationOrderSort(ids, pipe.upstream, pipe.downstream)

	return pipe, nil
}

// declarationOrderSort is Kahn's algorithm that always emits the ready step declared first.
// ids must be in declaration order.
func declarationOrderSort(ids []string, upstream, downstream map[string][]string) []string {
	pending := make(map[string]int, len(ids))
	for _, id := range ids {
		pending[id] = len(upstream[id])
	}

	emitted := make([]bool, len(ids))
	order := make([]string, 0, len(ids))

	for len(order) < len(ids) {
		next := -1

		for i, id := range ids {
			if !emitted[i] && pending[id] == 0 {
				next = i

				break
			}
		}

		// Unreachable on an acyclic graph.
		if next == -1 {
			break
		}

		emitted[next] = true
		order = append(order, ids[next])

		for _, down := range downstream[ids[next]] {
			pending[down]--
		}
	}

	return order
}
