// Package drawer renders a pipeline as a Graphviz DOT graph.
package drawer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/pipedef/pkg/pipeline"
	"github.com/askiada/pipedef/pkg/pipeline/model"
)

// Option customises the rendered graph.
type Option func(*description)

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// GraphAttribute sets a graph level attribute, for instance rankdir=LR.
// The value is escaped so it always stays a single quoted DOT string.
func GraphAttribute(key, value string) Option {
	return func(d *description) {
		d.Attributes[key] = quoteEscaper.Replace(value)
	}
}

// WithoutPolicy hides the retry policy under each step name.
func WithoutPolicy() Option {
	return func(d *description) {
		d.hidePolicy = true
	}
}

type rgb struct {
	red, green, blue uint8
}

var kindColours = map[model.Kind]rgb{
	model.WaitForObjectKind: {red: 173, green: 216, blue: 230},
	model.RunFunctionKind:   {red: 144, green: 238, blue: 144},
	model.TransferDataKind:  {red: 255, green: 200, blue: 120},
}

var unknownColour = rgb{red: 211, green: 211, blue: 211}

// KindColour returns the hexadecimal fill colour of a step kind.
func KindColour(kind model.Kind) (string, error) {
	col, ok := kindColours[kind]
	if !ok {
		col = unknownColour
	}

	hex, err := colors.RGB(col.red, col.green, col.blue) //nolint
	if err != nil {
		return "", errors.Wrapf(err, "unable to get colour for kind %q", kind)
	}

	return hex.ToHEX().String(), nil
}

// DOT writes pipe as a DOT digraph. Steps are listed in topological order
// and each step is filled with the colour of its kind.
func DOT(wrt io.Writer, pipe *pipeline.Pipeline, options ...Option) error {
	gra, err := toGraph(pipe)
	if err != nil {
		return errors.Wrapf(err, "unable to build graph of pipeline %q", pipe.ID())
	}

	desc, err := generateDOT(gra, pipe, options...)
	if err != nil {
		return fmt.Errorf("failed to generate DOT description: %w", err)
	}

	return renderDOT(wrt, desc)
}

func toGraph(pipe *pipeline.Pipeline) (graph.Graph[string, string], error) {
	gra := graph.New(graph.StringHash, graph.Directed())

	for _, step := range pipe.Steps() {
		colour, err := KindColour(step.Kind)
		if err != nil {
			return nil, err
		}

		policy, err := pipe.EffectivePolicy(step.ID)
		if err != nil {
			return nil, err
		}

		err = gra.AddVertex(step.ID,
			graph.VertexAttribute("style", "filled"),
			graph.VertexAttribute("fillcolor", colour),
			graph.VertexAttribute("tooltip", step.Kind.String()),
			graph.VertexAttribute("xlabel", fmt.Sprintf("%s, retries: %d", step.Kind, policy.Retries)),
		)
		if err != nil {
			return nil, errors.Wrap(err, "unable to add vertex")
		}
	}

	for _, edge := range pipe.Edges() {
		err := gra.AddEdge(edge.From, edge.To)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add edge from %s to %s", edge.From, edge.To)
		}
	}

	return gra, nil
}

const dotTemplate = `strict digraph {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}-> "{{.Target}}"{{else}}[ {{with .Label}}label={{.}}, {{end}}{{range $k, $v := .Attributes}}{{$k}}="{{$v}}", {{end}}]{{end}};
	{{end}}
	}
	`

type description struct {
	Attributes map[string]string
	Statements []statement

	hidePolicy bool
}

// statement is a node when Target is empty and an edge otherwise.
type statement struct {
	Source     string
	Target     string
	Label      string
	Attributes map[string]string
}

func generateDOT(gra graph.Graph[string, string], pipe *pipeline.Pipeline, options ...Option) (description, error) {
	desc := description{
		Attributes: map[string]string{"label": pipe.ID()},
		Statements: make([]statement, 0),
	}

	for _, option := range options {
		option(&desc)
	}

	adjacencyMap, err := gra.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	order := pipe.TopologicalOrder()

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}

	for _, vertex := range order {
		_, properties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		stmt := statement{
			Source:     vertex,
			Attributes: make(map[string]string, len(properties.Attributes)),
		}

		for k, v := range properties.Attributes {
			if k == "xlabel" {
				if !desc.hidePolicy {
					stmt.Label = fmt.Sprintf(`<%s <BR /> <FONT POINT-SIZE="12">%s</FONT>>`, vertex, v)
				}

				continue
			}

			stmt.Attributes[k] = v
		}

		desc.Statements = append(desc.Statements, stmt)

		targets := make([]string, 0, len(adjacencyMap[vertex]))
		for target := range adjacencyMap[vertex] {
			targets = append(targets, target)
		}

		sort.Slice(targets, func(i, j int) bool {
			return position[targets[i]] < position[targets[j]]
		})

		for _, target := range targets {
			desc.Statements = append(desc.Statements, statement{Source: vertex, Target: target})
		}
	}

	return desc, nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	err = tpl.Execute(wrt, desc)
	if err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}
