package pipeline

import (
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/pipedef/pkg/pipeline/model"
)

// RenderParams returns the params of a step with the date macros of every string expanded
// for the given logical date. Supported macros are {{ ds }}, {{ ds_nodash }}, {{ ts }},
// {{ ts_nodash }} and {{ ds_add ds N }}.
func (p *Pipeline) RenderParams(id string, logicalDate time.Time) (model.Params, error) {
	step, ok := p.Step(id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStep, "step %q is not defined in pipeline %q", id, p.id)
	}

	funcs := macros(logicalDate)

	rendered, err := renderValue(map[string]any(step.Params), funcs)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to render params of step %q", id)
	}

	params, _ := rendered.(map[string]any)

	return params, nil
}

func macros(logicalDate time.Time) template.FuncMap {
	return template.FuncMap{
		"ds":        func() string { return logicalDate.Format("2006-01-02") },
		"ds_nodash": func() string { return logicalDate.Format("20060102") },
		"ts":        func() string { return logicalDate.Format(time.RFC3339) },
		"ts_nodash": func() string { return logicalDate.Format("20060102T150405") },
		"ds_add": func(ds string, days int) (string, error) {
			date, err := time.Parse("2006-01-02", ds)
			if err != nil {
				return "", errors.Wrapf(err, "unable to parse date %q", ds)
			}

			return date.AddDate(0, 0, days).Format("2006-01-02"), nil
		},
	}
}

func renderValue(value any, funcs template.FuncMap) (any, error) {
	switch val := value.(type) {
	case string:
		return renderString(val, funcs)
	case map[string]any:
		res := make(map[string]any, len(val))
		for k, item := range val {
			rendered, err := renderValue(item, funcs)
			if err != nil {
				return nil, errors.Wrapf(err, "key %q", k)
			}

			res[k] = rendered
		}

		return res, nil
	case model.Params:
		return renderValue(map[string]any(val), funcs)
	case []any:
		res := make([]any, len(val))
		for i, item := range val {
			rendered, err := renderValue(item, funcs)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}

			res[i] = rendered
		}

		return res, nil
	case []string:
		res := make([]string, len(val))
		for i, item := range val {
			rendered, err := renderString(item, funcs)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}

			res[i] = rendered
		}

		return res, nil
	default:
		return value, nil
	}
}

func renderString(s string, funcs template.FuncMap) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	tpl, err := template.New("param").Funcs(funcs).Option("missingkey=error").Parse(s)
	if err != nil {
		return "", errors.Wrap(err, "unable to parse template")
	}

	var out strings.Builder

	err = tpl.Execute(&out, nil)
	if err != nil {
		return "", errors.Wrap(err, "unable to execute template")
	}

	return out.String(), nil
}
