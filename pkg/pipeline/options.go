package pipeline

import (
	"time"

	"github.com/askiada/pipedef/pkg/pipeline/model"
)

// BuilderOption configures the pipeline-level settings of a Builder.
type BuilderOption func(b *Builder)

// WithDescription sets the free text description of the pipeline.
func WithDescription(description string) BuilderOption {
	return func(b *Builder) {
		b.description = description
	}
}

// WithSchedule sets the cron expression the pipeline runs on.
func WithSchedule(schedule string) BuilderOption {
	return func(b *Builder) {
		b.schedule = schedule
	}
}

// WithCatchup sets whether runs missed before a late start are backfilled.
func WithCatchup(catchup bool) BuilderOption {
	return func(b *Builder) {
		b.catchup = catchup
	}
}

// WithDefaults sets the policy every step inherits.
func WithDefaults(defaults model.Defaults) BuilderOption {
	return func(b *Builder) {
		b.defaults = defaults.Clone()
	}
}

// StepOption configures a single step.
type StepOption func(s *model.Step)

// WithPolicyOverride replaces the step's override of the pipeline defaults.
func WithPolicyOverride(override model.PolicyOverride) StepOption {
	return func(s *model.Step) {
		s.Policy = override.Clone()
	}
}

// StepRetries overrides the number of retries of a step.
func StepRetries(retries int) StepOption {
	return func(s *model.Step) {
		if s.Policy == nil {
			s.Policy = &model.PolicyOverride{}
		}

		s.Policy.Retries = &retries
	}
}

// StepRetryDelay overrides the delay between retries of a step.
func StepRetryDelay(delay time.Duration) StepOption {
	return func(s *model.Step) {
		if s.Policy == nil {
			s.Policy = &model.PolicyOverride{}
		}

		s.Policy.RetryDelay = &delay
	}
}

// StepNotifyOnFailure overrides who is notified when a step fails. No recipients disables notifications.
func StepNotifyOnFailure(recipients ...string) StepOption {
	return func(s *model.Step) {
		if s.Policy == nil {
			s.Policy = &model.PolicyOverride{}
		}

		s.Policy.NotifyOnFailure = append([]string{}, recipients...)
	}
}
