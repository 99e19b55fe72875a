// Package config provides run and engine configuration for the planner.
//
// RunConfig is supplied per run and validated before the run starts.
// EngineConfig is process wide: reasoning backend, timeouts, storage and
// transport settings. It is loaded from YAML and the environment by Load.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/typeutil"
)

const (
	// DefaultThreshold is the evaluation score at which a plan is accepted.
	DefaultThreshold = 7
	// DefaultBudget is the number of refinement cycles a run may spend.
	DefaultBudget = 9
	// MaxScore is the top of the evaluation scale.
	MaxScore = 10
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// ConfigError reports invalid configuration. It is the only error class
// that aborts a run, and it is always returned before the run starts.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// RunConfig is the configuration of a single planning run.
type RunConfig struct {
	Task      string                 `json:"task" validate:"notblank"`
	Domain    envelope.DomainContext `json:"domain"`
	Threshold int                    `json:"threshold" validate:"min=0,max=10"`
	Budget    int                    `json:"budget" validate:"min=0"`
}

// NewRunConfig returns a RunConfig for task with default tunables.
func NewRunConfig(task string) RunConfig {
	return RunConfig{
		Task:      task,
		Threshold: DefaultThreshold,
		Budget:    DefaultBudget,
	}
}

// Validate checks the run configuration and returns a *ConfigError.
func (c RunConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Reason: err.Error(), Err: err}
	}
	fe := verrs[0]
	return &ConfigError{
		Field:  jsonFieldName(fe.Field()),
		Reason: describeFieldError(fe),
		Err:    err,
	}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func jsonFieldName(field string) string {
	switch field {
	case "Task":
		return "task"
	case "Threshold":
		return "threshold"
	case "Budget":
		return "budget"
	default:
		return strings.ToLower(field)
	}
}

// RunConfigFromMap builds a RunConfig from a decoded request body.
// Missing tunables keep their defaults; unknown keys are ignored.
// Numbers may be int or float64.
func RunConfigFromMap(m map[string]any) (RunConfig, error) {
	task, _ := typeutil.LookupString(m, "task")
	c := NewRunConfig(task)

	if v, ok := m["threshold"]; ok {
		n, ok := typeutil.Int(v)
		if !ok {
			return c, NewConfigError("threshold", fmt.Sprintf("must be an integer, got %v", v))
		}
		c.Threshold = n
	}
	if v, ok := m["budget"]; ok {
		n, ok := typeutil.Int(v)
		if !ok {
			return c, NewConfigError("budget", fmt.Sprintf("must be an integer, got %v", v))
		}
		c.Budget = n
	}
	if d, ok := typeutil.LookupMap(m, "domain"); ok {
		c.Domain = DomainContextFromMap(d)
	}
	return c, nil
}

// DomainContextFromMap reads domain context fields from a decoded map.
func DomainContextFromMap(m map[string]any) envelope.DomainContext {
	var d envelope.DomainContext
	d.Domain, _ = typeutil.LookupString(m, "domain")
	d.ProcessAreas, _ = typeutil.LookupStrings(m, "process_areas")
	d.ProblemContext, _ = typeutil.LookupString(m, "problem_context")
	d.InputContext, _ = typeutil.LookupString(m, "input_context")
	d.OutputContext, _ = typeutil.LookupString(m, "output_context")
	d.Constraints, _ = typeutil.LookupStrings(m, "constraints")
	return d
}

// ToMap converts the run configuration to a map.
func (c RunConfig) ToMap() map[string]any {
	return map[string]any{
		"task":      c.Task,
		"threshold": c.Threshold,
		"budget":    c.Budget,
		"domain": map[string]any{
			"domain":          c.Domain.Domain,
			"process_areas":   c.Domain.ProcessAreas,
			"problem_context": c.Domain.ProblemContext,
			"input_context":   c.Domain.InputContext,
			"output_context":  c.Domain.OutputContext,
			"constraints":     c.Domain.Constraints,
		},
	}
}
