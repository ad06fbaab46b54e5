// Package model provides the data structures of a pipeline description.
// It defines the step kinds and their parameters, the retry and notification policy
// shared by a pipeline and overridden per step, and the steps and edges themselves.
package model
