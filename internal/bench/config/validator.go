package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/squall/internal/bench/metricwriter"
	"github.com/wesleyorama2/squall/internal/bench/sampling"
)

//go:embed schema.json
var schemaJSON string

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateSchema checks a raw YAML or JSON document against the embedded
// JSON schema. Violations are returned as *ValidationErrors keyed by the
// instance location.
func ValidateSchema(data []byte, path string) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	doc, err := toJSONValue(data, path)
	if err != nil {
		return err
	}

	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("schema validation: %w", err)
		}
		errs := &ValidationErrors{}
		collectSchemaErrors(verr, errs)
		if !errs.HasErrors() {
			errs.Add("", verr.Error())
		}
		return errs
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("invalid schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("invalid schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// toJSONValue decodes the document into the generic form the schema
// validator expects. YAML is re-encoded as JSON first.
func toJSONValue(data []byte, path string) (interface{}, error) {
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML config: %w", err)
		}
		data = encoded
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return doc, nil
}

// collectSchemaErrors flattens the cause tree, keeping leaf messages.
func collectSchemaErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		field := strings.TrimPrefix(strings.ReplaceAll(err.InstanceLocation, "/", "."), ".")
		errs.Add(field, err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// Validate validates the configuration semantically. Call it after
// ApplyDefaults.
//
// Returns nil if valid, or a *ValidationErrors containing all problems.
// Schedule entries with negative users or unknown mixes are not errors: they
// are reported by Warnings and still run. Negative users activate no agents
// and an unknown mix falls back to the generator's default weights.
func (c *BenchmarkConfig) Validate() error {
	errs := &ValidationErrors{}

	validateTiming(&c.Timing, errs)
	validateSampling(&c.Sampling, errs)
	validateMetrics(&c.Metrics, errs)

	if c.Shutdown.AgentJoin < 0 || c.Shutdown.AsyncDrain < 0 || c.Shutdown.Scoreboard < 0 {
		errs.Add("shutdown", "timeouts cannot be negative")
	}
	if c.Report.Interval < 0 {
		errs.Add("report.interval", "interval cannot be negative")
	}

	if len(c.Targets) == 0 {
		errs.Add("targets", "at least one target is required")
	}
	seen := make(map[string]bool, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]
		if seen[t.Name] {
			errs.Add(fmt.Sprintf("targets[%d].name", i), fmt.Sprintf("duplicate target name: %s", t.Name))
		}
		seen[t.Name] = true
		validateTarget(fmt.Sprintf("targets[%d]", i), t, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTiming(t *TimingConfig, errs *ValidationErrors) {
	if t.Duration <= 0 {
		errs.Add("timing.duration", "duration must be greater than 0")
	}
	if t.RampUp < 0 {
		errs.Add("timing.rampUp", "rampUp cannot be negative")
	}
	if t.RampDown < 0 {
		errs.Add("timing.rampDown", "rampDown cannot be negative")
	}
}

func validateSampling(s *SamplingConfig, errs *ValidationErrors) {
	kind, err := sampling.ParseKind(s.Strategy)
	if err != nil {
		errs.Add("sampling.strategy", err.Error())
	}
	if _, err := sampling.ParseKind(s.WaitTimes); err != nil {
		errs.Add("sampling.waitTimes", err.Error())
	}
	if kind == sampling.KindPoisson && s.MeanInterval < 1 {
		errs.Add("sampling.meanInterval", "meanInterval must be at least 1 for poisson sampling")
	}
}

func validateMetrics(m *MetricsConfig, errs *ValidationErrors) {
	switch metricwriter.Kind(m.Writer) {
	case "", metricwriter.KindDiscard:
	case metricwriter.KindFile:
		if m.Path == "" {
			errs.Add("metrics.path", "path is required for the file writer")
		}
	case metricwriter.KindSocket:
		if m.Address == "" {
			errs.Add("metrics.address", "address is required for the socket writer")
		}
	default:
		errs.Add("metrics.writer", fmt.Sprintf("unknown metric writer: %s", m.Writer))
	}
	if m.BufferSize < 0 {
		errs.Add("metrics.bufferSize", "bufferSize cannot be negative")
	}
}

func validateTarget(prefix string, t *TargetConfig, errs *ValidationErrors) {
	if t.Generator == "" {
		errs.Add(prefix+".generator", "generator is required")
	}
	if t.OpenLoopProbability < 0 || t.OpenLoopProbability > 1 {
		errs.Add(prefix+".openLoopProbability", "openLoopProbability must be between 0 and 1")
	}
	if t.MeanThinkTime < 0 {
		errs.Add(prefix+".meanThinkTime", "meanThinkTime cannot be negative")
	}
	if t.MeanCycleTime < 0 {
		errs.Add(prefix+".meanCycleTime", "meanCycleTime cannot be negative")
	}
	if _, err := t.ParamsJSON(); err != nil {
		errs.Add(prefix+".params", err.Error())
	}

	if len(t.Schedule) == 0 {
		errs.Add(prefix+".schedule", "at least one schedule entry is required")
	}
	for i, iv := range t.Schedule {
		p := fmt.Sprintf("%s.schedule[%d]", prefix, i)
		if iv.Interval <= 0 {
			errs.Add(p+".interval", "interval must be greater than 0")
		}
		if iv.TransitionTime < 0 {
			errs.Add(p+".transitionTime", "transitionTime cannot be negative")
		}
	}
	if t.MaxUsers() == 0 && len(t.Schedule) > 0 {
		errs.Add(prefix+".schedule", "at least one schedule entry must have users")
	}
}

// Warnings returns schedule problems that are tolerated at run time.
func (c *BenchmarkConfig) Warnings() []string {
	var warnings []string
	for i := range c.Targets {
		t := &c.Targets[i]
		mixes := make(map[string]bool, len(t.Mixes))
		for _, m := range t.Mixes {
			mixes[m] = true
		}
		for j, iv := range t.Schedule {
			p := fmt.Sprintf("targets[%d].schedule[%d]", i, j)
			if iv.Users < 0 {
				warnings = append(warnings, fmt.Sprintf("%s: users is negative (%d); the interval runs with no users", p, iv.Users))
			}
			if iv.Mix != "" && !mixes[iv.Mix] {
				warnings = append(warnings, fmt.Sprintf("%s: mix %q is not one of the target's mixes; the generator's default weights apply", p, iv.Mix))
			}
			if iv.OpenLoopMaxOpsPerSec < 0 {
				warnings = append(warnings, fmt.Sprintf("%s: openLoopMaxOpsPerSec is negative and is treated as uncapped", p))
			}
		}
	}
	return warnings
}
