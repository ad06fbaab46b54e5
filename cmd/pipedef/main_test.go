package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/pipedef/pkg/pipeline/loader"
)

var etlFile = filepath.Join("testdata", "pipelines", "etl_s3_to_redshift.yaml")

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	code := runWithArgs(context.Background(), append(args, "--log-no-color"), &stdout, &stderr)

	return code, stdout.String(), stderr.String()
}

func TestRunWithArgs(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args     []string
		expected string
	}{
		"validate file": {
			args:     []string{"validate", etlFile},
			expected: "etl_s3_to_redshift: 3 steps, 2 edges\n",
		},
		"validate dir": {
			args:     []string{"validate", filepath.Join("testdata", "pipelines"), "--concurrency", "1"},
			expected: "etl_s3_to_redshift: 3 steps, 2 edges\nsales_report: 2 steps, 1 edges\n",
		},
		"order": {
			args:     []string{"order", etlFile},
			expected: "check_s3_file\nvalidate_data\nload_to_redshift\n",
		},
		"next": {
			args:     []string{"next", etlFile, "--after", "2023-01-01T00:00:00Z", "--count", "2"},
			expected: "2023-01-01T01:00:00Z\n2023-01-02T01:00:00Z\n",
		},
		"next before start date": {
			args:     []string{"next", etlFile, "--after", "2022-06-01T00:00:00Z"},
			expected: "2023-01-01T01:00:00Z\n",
		},
		"next never fires": {
			args:     []string{"next", filepath.Join("testdata", "never.yaml"), "--after", "2023-01-01T00:00:00Z", "--count", "3"},
			expected: "",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			code, stdout, stderr := run(t, tc.args...)
			require.Equal(t, 0, code, stderr)
			assert.Equal(t, tc.expected, stdout)
		})
	}
}

func TestExport(t *testing.T) {
	t.Parallel()

	for _, format := range []loader.Format{loader.FormatYAML, loader.FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()

			code, stdout, stderr := run(t, "export", etlFile, "--output", string(format))
			require.Equal(t, 0, code, stderr)

			pipe, err := loader.Decode(strings.NewReader(stdout), format)
			require.NoError(t, err)
			assert.Equal(t, "etl_s3_to_redshift", pipe.ID())
			assert.Equal(t, []string{"check_s3_file", "validate_data", "load_to_redshift"}, pipe.TopologicalOrder())
		})
	}
}

func TestDOT(t *testing.T) {
	t.Parallel()

	code, stdout, stderr := run(t, "dot", etlFile, "--rankdir", "tb")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, `rankdir="TB";`)
	assert.Contains(t, stdout, `"check_s3_file" -> "validate_data"`)
	assert.Contains(t, stdout, "retries: 1")

	code, stdout, _ = run(t, "dot", etlFile, "--no-policy")
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "retries")
}

func TestRender(t *testing.T) {
	t.Parallel()

	code, stdout, stderr := run(t, "render", filepath.Join("testdata", "manual.yaml"), "backfill", "--date", "2023-03-08", "-o", "json")
	require.Equal(t, 0, code, stderr)

	var params map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &params))
	assert.Equal(t, map[string]any{
		"function": "backfill",
		"args": map[string]any{
			"from": "2023-03-01",
			"to":   "2023-03-08",
		},
	}, params)

	code, stdout, stderr = run(t, "render", etlFile, "check_s3_file", "--date", "2023-03-08")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "location: data/2023-03-08/sales_data.csv")
}

func TestRunWithArgsErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args       []string
		code       int
		stderrPart string
	}{
		"no command": {
			args:       nil,
			code:       exitUsage,
			stderrPart: "Commands:",
		},
		"unknown command": {
			args:       []string{"run", etlFile},
			code:       exitUsage,
			stderrPart: `unknown command "run"`,
		},
		"missing argument": {
			args:       []string{"order"},
			code:       exitUsage,
			stderrPart: "expected <file>",
		},
		"unknown flag": {
			args:       []string{"order", etlFile, "--nope"},
			code:       exitUsage,
			stderrPart: "unknown flag: --nope",
		},
		"invalid output": {
			args:       []string{"export", etlFile, "--output", "toml"},
			code:       exitUsage,
			stderrPart: "invalid configuration",
		},
		"invalid params": {
			args:       []string{"validate", filepath.Join("testdata", "broken.yaml")},
			code:       exitFailure,
			stderrPart: "source.key is required",
		},
		"missing file": {
			args:       []string{"validate", filepath.Join("testdata", "missing.yaml")},
			code:       exitFailure,
			stderrPart: "unable to stat path",
		},
		"unscheduled": {
			args:       []string{"next", filepath.Join("testdata", "manual.yaml")},
			code:       exitFailure,
			stderrPart: "pipeline has no schedule",
		},
		"invalid after": {
			args:       []string{"next", etlFile, "--after", "yesterday"},
			code:       exitUsage,
			stderrPart: "invalid --after",
		},
		"unknown step": {
			args:       []string{"render", etlFile, "missing"},
			code:       exitFailure,
			stderrPart: "is not defined in pipeline",
		},
		"invalid rankdir": {
			args:       []string{"dot", etlFile, "--rankdir", `LR";x`},
			code:       exitUsage,
			stderrPart: "invalid --rankdir",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer

			code := runWithArgs(context.Background(), tc.args, &stdout, &stderr)
			assert.Equal(t, tc.code, code)
			assert.Contains(t, stderr.String(), tc.stderrPart)
			assert.Empty(t, stdout.String())
		})
	}
}
