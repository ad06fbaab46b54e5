package model

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Params holds the kind-specific parameters of a step, as written by the pipeline author.
type Params map[string]any

// Clone returns a deep copy of p. Nested maps and slices are copied as well.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}

	res := make(Params, len(p))
	for k, v := range p {
		res[k] = cloneValue(v)
	}

	return res
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Params(val).Clone())
	case Params:
		return val.Clone()
	case []any:
		res := make([]any, len(val))
		for i, item := range val {
			res[i] = cloneValue(item)
		}

		return res
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// ParamSpec is the typed, validated form of a step's parameters.
type ParamSpec interface {
	// Kind returns the kind the parameters belong to.
	Kind() Kind
	// Connections returns the connection identifiers the step refers to.
	Connections() []string
}

// Default values applied to wait-for-object steps when the keys are absent.
const (
	DefaultWaitTimeout      = 7 * 24 * time.Hour
	DefaultWaitPollInterval = 60 * time.Second
	DefaultTransferSchema   = "public"
)

// WaitForObjectParams describes a step that waits until an object exists.
type WaitForObjectParams struct {
	// Location is the object key pattern; it may contain date macros such as {{ ds }}.
	Location     string        `mapstructure:"location" validate:"required"`
	Bucket       string        `mapstructure:"bucket"`
	ConnID       string        `mapstructure:"conn_id"`
	Mode         string        `mapstructure:"mode" validate:"omitempty,oneof=poke reschedule"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
}

func (WaitForObjectParams) Kind() Kind { return WaitForObjectKind }

func (w WaitForObjectParams) Connections() []string {
	return nonEmpty(w.ConnID)
}

// RunFunctionParams describes a step that calls a function known to the engine.
type RunFunctionParams struct {
	Function string         `mapstructure:"function" validate:"required"`
	Args     map[string]any `mapstructure:"args"`
}

func (RunFunctionParams) Kind() Kind { return RunFunctionKind }

func (RunFunctionParams) Connections() []string { return nil }

// ObjectLocation points at an object in a bucket.
type ObjectLocation struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
	Key    string `mapstructure:"key" validate:"required"`
	ConnID string `mapstructure:"conn_id"`
}

// TableLocation points at a table in a warehouse.
type TableLocation struct {
	Schema string `mapstructure:"schema"`
	Table  string `mapstructure:"table" validate:"required"`
	ConnID string `mapstructure:"conn_id"`
}

// TransferDataParams describes a step that copies an object into a table.
type TransferDataParams struct {
	Source        ObjectLocation `mapstructure:"source"`
	Destination   TableLocation  `mapstructure:"destination"`
	FormatOptions []string       `mapstructure:"format_options" validate:"dive,required"`
}

func (TransferDataParams) Kind() Kind { return TransferDataKind }

func (t TransferDataParams) Connections() []string {
	return nonEmpty(t.Source.ConnID, t.Destination.ConnID)
}

// ParamsError reports why a parameter map does not satisfy its kind.
type ParamsError struct {
	Kind     Kind
	Problems []string
	Err      error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid %s params: %s", e.Kind, strings.Join(e.Problems, "; "))
}

func (e *ParamsError) Unwrap() error {
	return e.Err
}

// DecodeParams decodes params into the typed form of kind and validates it.
// Durations accept integer seconds or Go duration strings. Unknown keys are rejected.
func DecodeParams(kind Kind, params Params) (ParamSpec, error) {
	switch kind {
	case WaitForObjectKind:
		spec := WaitForObjectParams{
			Timeout:      DefaultWaitTimeout,
			PollInterval: DefaultWaitPollInterval,
		}

		return decodeInto(kind, params, &spec)
	case RunFunctionKind:
		spec := RunFunctionParams{}

		return decodeInto(kind, params, &spec)
	case TransferDataKind:
		spec := TransferDataParams{Destination: TableLocation{Schema: DefaultTransferSchema}}

		return decodeInto(kind, params, &spec)
	}

	return nil, &ParamsError{
		Kind:     kind,
		Problems: []string{fmt.Sprintf("kind %q is not one of %v", string(kind), Kinds())},
		Err:      ErrUnknownKind,
	}
}

func decodeInto[S ParamSpec](kind Kind, params Params, spec *S) (ParamSpec, error) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           spec,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to create params decoder")
	}

	err = dec.Decode(map[string]any(params))
	if err != nil {
		return nil, &ParamsError{Kind: kind, Problems: []string{err.Error()}, Err: err}
	}

	err = getValidator().Struct(spec)
	if err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, errors.Wrap(err, "unable to validate params")
		}

		return nil, &ParamsError{Kind: kind, Problems: describeFieldErrors(fieldErrs), Err: err}
	}

	return *spec, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook reads plain numbers as a number of seconds.
func secondsToDurationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}

	switch val := data.(type) {
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	case uint64:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	}

	return data, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report fields under the names authors write in their params.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}

			return name
		})

		// Documents carry delays as integer seconds.
		_ = validate.RegisterValidation("whole_seconds", func(fl validator.FieldLevel) bool {
			return time.Duration(fl.Field().Int())%time.Second == 0
		})
	})

	return validate
}

func describeFieldErrors(fieldErrs validator.ValidationErrors) []string {
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if idx := strings.Index(path, "."); idx != -1 {
			path = path[idx+1:]
		}

		problems = append(problems, path+" "+describeTag(fe))
	}

	sort.Strings(problems)

	return problems
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must not be negative"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "whole_seconds":
		return "must be a whole number of seconds"
	default:
		return "is invalid"
	}
}

func nonEmpty(values ...string) []string {
	var res []string

	for _, v := range values {
		if v != "" {
			res = append(res, v)
		}
	}

	return res
}
