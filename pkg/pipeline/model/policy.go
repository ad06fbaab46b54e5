package model

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ErrInvalidPolicy is returned when retry or notification settings are out of range.
var ErrInvalidPolicy = errors.New("invalid policy")

// Defaults is the policy shared by every step of a pipeline.
type Defaults struct {
	Owner string
	// StartDate is the first logical date the pipeline may run for.
	StartDate       time.Time
	DependsOnPast   bool
	Retries         int           `validate:"gte=0"`
	RetryDelay      time.Duration `validate:"gte=0,whole_seconds"`
	NotifyOnFailure []string      `validate:"dive,required"`
	NotifyOnRetry   []string      `validate:"dive,required"`
}

// Validate checks that counts and delays are not negative, delays are whole seconds and
// recipients are not blank.
func (d Defaults) Validate() error {
	return validatePolicy(getValidator().Struct(d))
}

// Clone returns a copy of d that shares no slices with it.
func (d Defaults) Clone() Defaults {
	d.NotifyOnFailure = cloneStrings(d.NotifyOnFailure)
	d.NotifyOnRetry = cloneStrings(d.NotifyOnRetry)

	return d
}

// PolicyOverride replaces parts of the pipeline defaults for a single step.
// A nil field inherits the default. An empty, non-nil NotifyOnFailure disables notifications.
type PolicyOverride struct {
	Retries         *int           `validate:"omitempty,gte=0"`
	RetryDelay      *time.Duration `validate:"omitempty,gte=0,whole_seconds"`
	NotifyOnFailure []string       `validate:"omitempty,dive,required"`
}

// Validate checks the override the same way as Defaults.
func (o PolicyOverride) Validate() error {
	return validatePolicy(getValidator().Struct(o))
}

// Clone returns a deep copy of o.
func (o *PolicyOverride) Clone() *PolicyOverride {
	if o == nil {
		return nil
	}

	res := &PolicyOverride{NotifyOnFailure: cloneStrings(o.NotifyOnFailure)}

	if o.Retries != nil {
		retries := *o.Retries
		res.Retries = &retries
	}

	if o.RetryDelay != nil {
		delay := *o.RetryDelay
		res.RetryDelay = &delay
	}

	return res
}

// Policy is the effective policy of a step once its override is applied.
type Policy struct {
	Owner           string
	DependsOnPast   bool
	Retries         int
	RetryDelay      time.Duration
	NotifyOnFailure []string
	NotifyOnRetry   []string
}

// Apply merges o over d.
func (d Defaults) Apply(o *PolicyOverride) Policy {
	policy := Policy{
		Owner:           d.Owner,
		DependsOnPast:   d.DependsOnPast,
		Retries:         d.Retries,
		RetryDelay:      d.RetryDelay,
		NotifyOnFailure: cloneStrings(d.NotifyOnFailure),
		NotifyOnRetry:   cloneStrings(d.NotifyOnRetry),
	}

	if o == nil {
		return policy
	}

	if o.Retries != nil {
		policy.Retries = *o.Retries
	}

	if o.RetryDelay != nil {
		policy.RetryDelay = *o.RetryDelay
	}

	if o.NotifyOnFailure != nil {
		policy.NotifyOnFailure = cloneStrings(o.NotifyOnFailure)
	}

	return policy
}

func validatePolicy(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "unable to validate policy")
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fe.Field()+" "+describeTag(fe))
	}

	return errors.Wrapf(ErrInvalidPolicy, "%v", problems)
}

func cloneStrings(list []string) []string {
	if list == nil {
		return nil
	}

	return append([]string{}, list...)
}
