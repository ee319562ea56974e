package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines one register scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed is written directly to the store before any step runs.
	Seed Seed `yaml:"seed,omitempty"`

	// Steps run in order through the Registry.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and per-step writes.
	Assertions []Assertion `yaml:"assertions"`

	// Principles are checked after the assertions. See principle.go.
	Principles []string `yaml:"principles,omitempty"`
}

// Seed is raw starting data.
type Seed struct {
	Risks    []SeedRisk    `yaml:"risks,omitempty"`
	Controls []SeedControl `yaml:"controls,omitempty"`
}

// SeedRisk is a Risk written without synchronization.
type SeedRisk struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	ControlRefs []string  `yaml:"control_refs,omitempty"`
	CreatedAt   time.Time `yaml:"created_at,omitempty"`
}

// SeedControl is a Control written without synchronization. Reference
// defaults to ID.
type SeedControl struct {
	ID        string    `yaml:"id"`
	Reference string    `yaml:"reference,omitempty"`
	Title     string    `yaml:"title"`
	RiskRefs  []string  `yaml:"risk_refs,omitempty"`
	CreatedAt time.Time `yaml:"created_at,omitempty"`
}

// Step is one operation.
type Step struct {
	// Op is the operation name, see the Op constants.
	Op string `yaml:"op"`

	// ID names the target of update and delete operations.
	ID string `yaml:"id,omitempty"`

	// Title is used by create and update operations.
	Title string `yaml:"title,omitempty"`

	// Refs is the declared reference set for create and update operations.
	Refs []string `yaml:"refs,omitempty"`

	// Prune selects PruneDangling for reconcile.
	Prune bool `yaml:"prune,omitempty"`

	// ExpectID checks the id assigned by a create operation.
	ExpectID string `yaml:"expect_id,omitempty"`

	// ExpectError requires the step to fail with a message containing it.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// ID names the record for risk_refs and control_refs.
	ID string `yaml:"id,omitempty"`

	// Refs is the expected reference set for risk_refs and control_refs.
	Refs []string `yaml:"refs,omitempty"`

	// IDs is the expected Control id sequence for control_ids.
	IDs []string `yaml:"ids,omitempty"`

	// Collection is "risks" or "controls" for count and writes.
	Collection string `yaml:"collection,omitempty"`

	// Step is the 1-based step index for writes.
	Step int `yaml:"step,omitempty"`

	// Count is the expected number for count and writes.
	Count int `yaml:"count"`
}

// Operation names.
const (
	OpCreateRisk    = "create_risk"
	OpUpdateRisk    = "update_risk"
	OpDeleteRisk    = "delete_risk"
	OpCreateControl = "create_control"
	OpUpdateControl = "update_control"
	OpDeleteControl = "delete_control"
	OpReconcile     = "reconcile"
	OpMigrate       = "migrate"
	OpBootstrap     = "bootstrap"
)

// Assertion type constants.
const (
	AssertRelationHolds = "relation_holds"
	AssertNoViolations  = "no_violations"
	AssertRiskRefs      = "risk_refs"
	AssertControlRefs   = "control_refs"
	AssertControlIDs    = "control_ids"
	AssertCount         = "count"
	AssertWrites        = "writes"
)

var validOps = map[string]bool{
	OpCreateRisk: true, OpUpdateRisk: true, OpDeleteRisk: true,
	OpCreateControl: true, OpUpdateControl: true, OpDeleteControl: true,
	OpReconcile: true, OpMigrate: true, OpBootstrap: true,
}

var validAssertions = map[string]bool{
	AssertRelationHolds: true, AssertNoViolations: true,
	AssertRiskRefs: true, AssertControlRefs: true, AssertControlIDs: true,
	AssertCount: true, AssertWrites: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, r := range s.Seed.Risks {
		if r.ID == "" {
			return fmt.Errorf("seed.risks[%d]: id is required", i)
		}
	}
	for i, c := range s.Seed.Controls {
		if c.ID == "" {
			return fmt.Errorf("seed.controls[%d]: id is required", i)
		}
	}

	for i, step := range s.Steps {
		if !validOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		switch step.Op {
		case OpUpdateRisk, OpDeleteRisk, OpUpdateControl, OpDeleteControl:
			if step.ID == "" {
				return fmt.Errorf("steps[%d]: %s requires id", i, step.Op)
			}
		}
	}

	for i, a := range s.Assertions {
		if !validAssertions[a.Type] {
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
		switch a.Type {
		case AssertRiskRefs, AssertControlRefs:
			if a.ID == "" {
				return fmt.Errorf("assertions[%d]: %s requires id", i, a.Type)
			}
		case AssertCount:
			if a.Collection == "" {
				return fmt.Errorf("assertions[%d]: count requires collection", i)
			}
		case AssertWrites:
			if a.Collection == "" {
				return fmt.Errorf("assertions[%d]: writes requires collection", i)
			}
			if a.Step < 1 || a.Step > len(s.Steps) {
				return fmt.Errorf("assertions[%d]: step %d out of range 1-%d", i, a.Step, len(s.Steps))
			}
		}
	}

	for i, p := range s.Principles {
		if _, ok := principles[p]; !ok {
			return fmt.Errorf("principles[%d]: unknown principle %q", i, p)
		}
	}
	return nil
}
