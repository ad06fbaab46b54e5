package pipeline

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// maxRuns bounds Runs so a fine-grained schedule over a wide window cannot exhaust memory.
const maxRuns = 10000

// parseSchedule accepts standard five field expressions and descriptors such as @daily.
// An empty expression yields a nil schedule.
func parseSchedule(expr string) (cron.Schedule, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil //nolint:nilnil
	}

	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSchedule, "%q: %v", expr, err)
	}

	return sched, nil
}

// NextRun returns the first scheduled time strictly after after, never before the start date.
// It returns the zero time when the pipeline has no schedule.
func (p *Pipeline) NextRun(after time.Time) time.Time {
	if p.cron == nil {
		return time.Time{}
	}

	start := p.defaults.StartDate
	if !start.IsZero() && after.Before(start) {
		after = start.Add(-time.Nanosecond)
	}

	return p.cron.Next(after)
}

// Runs returns the scheduled times in (from, to]. When catchup is disabled only the latest one
// is returned, which is what an engine starting late should run.
func (p *Pipeline) Runs(from, to time.Time) []time.Time {
	if p.cron == nil || !to.After(from) {
		return nil
	}

	var runs []time.Time

	for next := p.NextRun(from); !next.IsZero() && !next.After(to); next = p.cron.Next(next) {
		runs = append(runs, next)
		if len(runs) == maxRuns {
			break
		}
	}

	if !p.catchup && len(runs) > 1 {
		return runs[len(runs)-1:]
	}

	return runs
}
