package pipeline

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/pipedef/pkg/pipeline/model"
)

// Document is the serialized form of a Pipeline exchanged with an execution engine.
type Document struct {
	ID          string           `json:"id" yaml:"id"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Schedule    string           `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Catchup     bool             `json:"catchup" yaml:"catchup"`
	Defaults    DefaultsDocument `json:"defaults" yaml:"defaults"`
	Steps       []StepDocument   `json:"steps" yaml:"steps"`
	Edges       []model.Edge     `json:"edges" yaml:"edges"`
}

// DefaultsDocument is the serialized form of model.Defaults.
type DefaultsDocument struct {
	Owner             string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	StartDate         *time.Time `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	DependsOnPast     bool       `json:"dependsOnPast,omitempty" yaml:"dependsOnPast,omitempty"`
	Retries           int        `json:"retries" yaml:"retries"`
	RetryDelaySeconds int64      `json:"retryDelaySeconds" yaml:"retryDelaySeconds"`
	NotifyOnFailure   []string   `json:"notifyOnFailure" yaml:"notifyOnFailure"`
	NotifyOnRetry     []string   `json:"notifyOnRetry,omitempty" yaml:"notifyOnRetry,omitempty"`
}

// StepDocument is the serialized form of model.Step.
type StepDocument struct {
	ID             string          `json:"id" yaml:"id"`
	Kind           string          `json:"kind" yaml:"kind"`
	Params         model.Params    `json:"params" yaml:"params"`
	PolicyOverride *PolicyDocument `json:"policyOverride,omitempty" yaml:"policyOverride,omitempty"`
}

// PolicyDocument is the serialized form of model.PolicyOverride.
// A nil NotifyOnFailure inherits the defaults, an empty one disables notifications.
type PolicyDocument struct {
	Retries           *int      `json:"retries,omitempty" yaml:"retries,omitempty"`
	RetryDelaySeconds *int64    `json:"retryDelaySeconds,omitempty" yaml:"retryDelaySeconds,omitempty"`
	NotifyOnFailure   *[]string `json:"notifyOnFailure,omitempty" yaml:"notifyOnFailure,omitempty"`
}

// Document returns the serialized form of p.
func (p *Pipeline) Document() Document {
	doc := Document{
		ID:          p.id,
		Description: p.description,
		Schedule:    p.schedule,
		Catchup:     p.catchup,
		Defaults: DefaultsDocument{
			Owner:             p.defaults.Owner,
			DependsOnPast:     p.defaults.DependsOnPast,
			Retries:           p.defaults.Retries,
			RetryDelaySeconds: int64(p.defaults.RetryDelay / time.Second),
			NotifyOnFailure:   append([]string{}, p.defaults.NotifyOnFailure...),
			NotifyOnRetry:     append([]string(nil), p.defaults.NotifyOnRetry...),
		},
		Steps: make([]StepDocument, 0, len(p.steps)),
		Edges: p.Edges(),
	}

	if !p.defaults.StartDate.IsZero() {
		start := p.defaults.StartDate
		doc.Defaults.StartDate = &start
	}

	for _, step := range p.steps {
		doc.Steps = append(doc.Steps, StepDocument{
			ID:             step.ID,
			Kind:           step.Kind.String(),
			Params:         step.Params.Clone(),
			PolicyOverride: policyDocument(step.Policy),
		})
	}

	return doc
}

func policyDocument(override *model.PolicyOverride) *PolicyDocument {
	if override == nil {
		return nil
	}

	doc := &PolicyDocument{}

	if override.Retries != nil {
		retries := *override.Retries
		doc.Retries = &retries
	}

	if override.RetryDelay != nil {
		seconds := int64(*override.RetryDelay / time.Second)
		doc.RetryDelaySeconds = &seconds
	}

	if override.NotifyOnFailure != nil {
		recipients := append([]string{}, override.NotifyOnFailure...)
		doc.NotifyOnFailure = &recipients
	}

	return doc
}

func (d DefaultsDocument) toModel() model.Defaults {
	defaults := model.Defaults{
		Owner:           d.Owner,
		DependsOnPast:   d.DependsOnPast,
		Retries:         d.Retries,
		RetryDelay:      time.Duration(d.RetryDelaySeconds) * time.Second,
		NotifyOnFailure: append([]string(nil), d.NotifyOnFailure...),
		NotifyOnRetry:   append([]string(nil), d.NotifyOnRetry...),
	}

	if d.StartDate != nil {
		defaults.StartDate = *d.StartDate
	}

	return defaults
}

func (d *PolicyDocument) toModel() model.PolicyOverride {
	override := model.PolicyOverride{Retries: d.Retries}

	if d.RetryDelaySeconds != nil {
		delay := time.Duration(*d.RetryDelaySeconds) * time.Second
		override.RetryDelay = &delay
	}

	if d.NotifyOnFailure != nil {
		override.NotifyOnFailure = append([]string{}, (*d.NotifyOnFailure)...)
	}

	return override
}

// FromDocument builds a Pipeline from its serialized form. The document goes through a
// Builder, so it is validated exactly like a pipeline assembled in code.
func FromDocument(doc Document) (*Pipeline, error) {
	bld, err := NewBuilder(doc.ID,
		WithDescription(doc.Description),
		WithSchedule(doc.Schedule),
		WithCatchup(doc.Catchup),
		WithDefaults(doc.Defaults.toModel()),
	)
	if err != nil {
		return nil, err
	}

	for _, step := range doc.Steps {
		kind, err := model.ParseKind(step.Kind)
		if err != nil {
			kind = model.Kind(step.Kind)
		}

		var opts []StepOption
		if step.PolicyOverride != nil {
			opts = append(opts, WithPolicyOverride(step.PolicyOverride.toModel()))
		}

		_, err = bld.DefineStep(kind, step.ID, step.Params, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline %q", doc.ID)
		}
	}

	for _, edge := range doc.Edges {
		err = bld.DeclareDependency(edge.From, edge.To)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline %q", doc.ID)
		}
	}

	return bld.Build()
}

// MarshalJSON encodes the pipeline as its Document.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(p.Document())
	if err != nil {
		return nil, errors.Wrapf(err, "unable to encode pipeline %q", p.id)
	}

	return b, nil
}

// MarshalYAML encodes the pipeline as its Document.
func (p *Pipeline) MarshalYAML() (interface{}, error) {
	return p.Document(), nil
}
