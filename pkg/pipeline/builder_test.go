package pipeline_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/pipedef/pkg/pipeline"
	"github.com/askiada/pipedef/pkg/pipeline/model"
)

func waitParams() model.Params {
	return model.Params{
		"location":      "data/{{ ds }}/sales_data.csv",
		"bucket":        "my-company-data",
		"conn_id":       "aws_default",
		"timeout":       3600,
		"poll_interval": 300,
	}
}

func runParams() model.Params {
	return model.Params{"function": "validate_data"}
}

func transferParams() model.Params {
	return model.Params{
		"source": map[string]any{
			"bucket":  "my-company-data",
			"key":     "data/{{ ds }}/sales_data.csv",
			"conn_id": "aws_default",
		},
		"destination": map[string]any{
			"schema":  "public",
			"table":   "sales",
			"conn_id": "redshift_default",
		},
		"format_options": []any{"CSV", "IGNOREHEADER 1"},
	}
}

func paramsFor(kind model.Kind) model.Params {
	switch kind {
	case model.WaitForObjectKind:
		return waitParams()
	case model.RunFunctionKind:
		return runParams()
	default:
		return transferParams()
	}
}

func newBuilder(t *testing.T, opts ...pipeline.BuilderOption) *pipeline.Builder {
	t.Helper()

	bld, err := pipeline.NewBuilder("etl_s3_to_redshift", opts...)
	require.NoError(t, err)

	return bld
}

func TestNewBuilder(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		id      string
		opts    []pipeline.BuilderOption
		wantErr error
	}{
		"valid": {
			id:   "etl",
			opts: []pipeline.BuilderOption{pipeline.WithSchedule("0 1 * * *")},
		},
		"descriptor schedule": {
			id:   "etl",
			opts: []pipeline.BuilderOption{pipeline.WithSchedule("@daily")},
		},
		"empty id": {
			id:      "",
			wantErr: pipeline.ErrInvalidID,
		},
		"id with space": {
			id:      "etl pipeline",
			wantErr: pipeline.ErrInvalidID,
		},
		"bad schedule": {
			id:      "etl",
			opts:    []pipeline.BuilderOption{pipeline.WithSchedule("every day at one")},
			wantErr: pipeline.ErrInvalidSchedule,
		},
		"negative retries": {
			id:      "etl",
			opts:    []pipeline.BuilderOption{pipeline.WithDefaults(model.Defaults{Retries: -1})},
			wantErr: pipeline.ErrInvalidPolicy,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bld, err := pipeline.NewBuilder(tc.id, tc.opts...)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, bld)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, bld)
		})
	}
}

func TestDefineStepReturnsCopy(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)
	params := runParams()

	step, err := bld.DefineStep(model.RunFunctionKind, "validate", params, pipeline.StepRetries(1))
	require.NoError(t, err)
	assert.Equal(t, "validate", step.ID)
	assert.Equal(t, model.RunFunctionKind, step.Kind)
	assert.Equal(t, model.RunFunctionParams{Function: "validate_data"}, step.Spec)

	step.Params["function"] = "changed"
	*step.Policy.Retries = 10
	params["function"] = "changed too"

	pipe, err := bld.Build()
	require.NoError(t, err)

	stored, ok := pipe.Step("validate")
	require.True(t, ok)
	assert.Equal(t, "validate_data", stored.Params["function"])
	assert.Equal(t, 1, *stored.Policy.Retries)
}

func TestDefineStepNestedArgsAreCopied(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)
	inner := map[string]any{"k": "v"}
	params := model.Params{
		"function": "validate_data",
		"args":     map[string]any{"inner": inner},
	}

	_, err := bld.DefineStep(model.RunFunctionKind, "validate", params)
	require.NoError(t, err)

	inner["k"] = "mutated"

	pipe, err := bld.Build()
	require.NoError(t, err)

	stored, ok := pipe.Step("validate")
	require.True(t, ok)

	spec, ok := stored.Spec.(model.RunFunctionParams)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"inner": map[string]any{"k": "v"}}, spec.Args)
	assert.Equal(t, map[string]any{"inner": map[string]any{"k": "v"}}, stored.Params["args"])
}

func TestDefineStepDuplicateID(t *testing.T) {
	t.Parallel()

	for _, first := range model.Kinds() {
		for _, second := range model.Kinds() {
			t.Run(fmt.Sprintf("%s then %s", first, second), func(t *testing.T) {
				t.Parallel()

				bld := newBuilder(t)

				_, err := bld.DefineStep(first, "step", paramsFor(first))
				require.NoError(t, err)

				_, err = bld.DefineStep(second, "step", paramsFor(second))
				require.ErrorIs(t, err, pipeline.ErrDuplicateID)
			})
		}
	}
}

func TestDefineStepDuplicateIDWinsOverInvalidParams(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	_, err := bld.DefineStep(model.RunFunctionKind, "step", runParams())
	require.NoError(t, err)

	_, err = bld.DefineStep(model.WaitForObjectKind, "step", model.Params{})
	require.ErrorIs(t, err, pipeline.ErrDuplicateID)
}

func TestDefineStepInvalidParams(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		kind     model.Kind
		params   model.Params
		problems []string
	}{
		"wait without location": {
			kind:     model.WaitForObjectKind,
			params:   model.Params{"timeout": 60},
			problems: []string{"location is required"},
		},
		"wait negative timeout": {
			kind:     model.WaitForObjectKind,
			params:   model.Params{"location": "a", "timeout": -60},
			problems: []string{"timeout must not be negative"},
		},
		"wait negative poll interval": {
			kind:     model.WaitForObjectKind,
			params:   model.Params{"location": "a", "poll_interval": -1},
			problems: []string{"poll_interval must not be negative"},
		},
		"run without function": {
			kind:     model.RunFunctionKind,
			params:   nil,
			problems: []string{"function is required"},
		},
		"transfer without destination": {
			kind: model.TransferDataKind,
			params: model.Params{
				"source": map[string]any{"bucket": "b", "key": "k"},
			},
			problems: []string{"destination.table is required"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bld := newBuilder(t)

			_, err := bld.DefineStep(tc.kind, "step", tc.params)
			require.ErrorIs(t, err, pipeline.ErrInvalidParams)

			var paramsErr *pipeline.InvalidParamsError
			require.ErrorAs(t, err, &paramsErr)
			assert.Equal(t, "step", paramsErr.StepID)
			assert.Equal(t, tc.problems, paramsErr.Problems)

			// The failed call must not have registered the step.
			_, err = bld.DefineStep(model.RunFunctionKind, "step", runParams())
			require.NoError(t, err)
		})
	}
}

func TestDefineStepUnknownKind(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	_, err := bld.DefineStep(model.Kind("bash"), "step", model.Params{})
	require.ErrorIs(t, err, pipeline.ErrInvalidParams)
	require.ErrorIs(t, err, model.ErrUnknownKind)
}

func TestDefineStepInvalidID(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	_, err := bld.DefineStep(model.RunFunctionKind, "", runParams())
	require.ErrorIs(t, err, pipeline.ErrInvalidID)

	_, err = bld.DefineStep(model.RunFunctionKind, "a/b", runParams())
	require.ErrorIs(t, err, pipeline.ErrInvalidID)
}

func TestDefineStepInvalidPolicyOverride(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	_, err := bld.DefineStep(model.RunFunctionKind, "validate", runParams(), pipeline.StepRetryDelay(-time.Second))
	require.ErrorIs(t, err, pipeline.ErrInvalidPolicy)

	_, err = bld.DefineStep(model.RunFunctionKind, "validate", runParams(), pipeline.StepNotifyOnFailure(""))
	require.ErrorIs(t, err, pipeline.ErrInvalidPolicy)

	_, err = bld.DefineStep(model.RunFunctionKind, "validate", runParams(), pipeline.StepRetryDelay(1500*time.Millisecond))
	require.ErrorIs(t, err, pipeline.ErrInvalidPolicy)

	_, err = pipeline.NewBuilder("etl", pipeline.WithDefaults(model.Defaults{RetryDelay: 2500 * time.Millisecond}))
	require.ErrorIs(t, err, pipeline.ErrInvalidPolicy)
}

func TestDeclareDependencyUnknownStep(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		upstream, downstream string
	}{
		"unknown upstream":   {upstream: "missing", downstream: "check"},
		"unknown downstream": {upstream: "check", downstream: "missing"},
		"both unknown":       {upstream: "missing", downstream: "other"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bld := newBuilder(t)
			_, err := bld.DefineStep(model.WaitForObjectKind, "check", waitParams())
			require.NoError(t, err)

			err = bld.DeclareDependency(tc.upstream, tc.downstream)
			require.ErrorIs(t, err, pipeline.ErrUnknownStep)
		})
	}
}

func TestDeclareDependencyCycle(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := bld.DefineStep(model.RunFunctionKind, id, runParams())
		require.NoError(t, err)
	}

	require.NoError(t, bld.DeclareDependency("a", "b"))

	err := bld.DeclareDependency("b", "a")
	require.ErrorIs(t, err, pipeline.ErrCycle)

	var cycleErr *pipeline.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "b", cycleErr.Upstream)
	assert.Equal(t, "a", cycleErr.Downstream)
	assert.Equal(t, []string{"a", "b"}, cycleErr.Path)
	assert.Equal(t, "dependency b -> a closes the cycle a -> b -> a", cycleErr.Error())

	require.NoError(t, bld.DeclareDependency("b", "c"))
	require.ErrorIs(t, bld.DeclareDependency("c", "a"), pipeline.ErrCycle)
	require.ErrorIs(t, bld.DeclareDependency("c", "c"), pipeline.ErrCycle)

	pipe, err := bld.Build()
	require.NoError(t, err)
	assert.Len(t, pipe.Edges(), 2)
}

func TestDeclareDependencyTwiceIsNoop(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	for _, id := range []string{"a", "b"} {
		_, err := bld.DefineStep(model.RunFunctionKind, id, runParams())
		require.NoError(t, err)
	}

	require.NoError(t, bld.DeclareDependency("a", "b"))
	require.NoError(t, bld.DeclareDependency("a", "b"))

	pipe, err := bld.Build()
	require.NoError(t, err)
	assert.Equal(t, []model.Edge{{From: "a", To: "b"}}, pipe.Edges())
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	for _, id := range []string{"a", "b"} {
		_, err := bld.DefineStep(model.RunFunctionKind, id, runParams())
		require.NoError(t, err)
	}

	err := bld.Chain("a", "b", "missing", "a")
	require.ErrorIs(t, err, pipeline.ErrUnknownStep)

	pipe, err := bld.Build()
	require.NoError(t, err)
	assert.Equal(t, []model.Edge{{From: "a", To: "b"}}, pipe.Edges())
}

func TestBuildEmptyPipeline(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	pipe, err := bld.Build()
	require.ErrorIs(t, err, pipeline.ErrEmptyPipeline)
	assert.Nil(t, pipe)
}

func TestBuildStepCount(t *testing.T) {
	t.Parallel()

	for _, total := range []int{1, 2, 10, 50} {
		t.Run(fmt.Sprintf("%d steps", total), func(t *testing.T) {
			t.Parallel()

			bld := newBuilder(t)

			for i := 0; i < total; i++ {
				kind := model.Kinds()[i%len(model.Kinds())]
				_, err := bld.DefineStep(kind, fmt.Sprintf("step_%d", i), paramsFor(kind))
				require.NoError(t, err)
			}

			pipe, err := bld.Build()
			require.NoError(t, err)
			assert.Len(t, pipe.Steps(), total)
			assert.Len(t, pipe.TopologicalOrder(), total)
		})
	}
}

func TestBuildSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	bld := newBuilder(t)

	_, err := bld.DefineStep(model.RunFunctionKind, "a", runParams())
	require.NoError(t, err)

	first, err := bld.Build()
	require.NoError(t, err)

	_, err = bld.DefineStep(model.RunFunctionKind, "b", runParams())
	require.NoError(t, err)
	require.NoError(t, bld.DeclareDependency("a", "b"))

	second, err := bld.Build()
	require.NoError(t, err)

	assert.Len(t, first.Steps(), 1)
	assert.Empty(t, first.Edges())
	assert.Len(t, second.Steps(), 2)
	assert.Len(t, second.Edges(), 1)
}
