package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefinitionSpec is the serializable form of a workflow definition. It
// is the wire format served to visualization clients and the storage
// format of definition files.
type DefinitionSpec struct {
	// ID is the definition id
	ID string `json:"id" yaml:"id"`
	// Version is the definition version
	Version int `json:"version" yaml:"version"`
	// Start is the id of the start step
	Start string `json:"start" yaml:"start"`
	// Steps contains all step specs in declaration order
	Steps []StepSpec `json:"steps" yaml:"steps"`
	// Transitions contains all transition specs in declaration order
	Transitions []TransitionSpec `json:"transitions" yaml:"transitions"`
}

// StepSpec is the serializable form of a step.
type StepSpec struct {
	ID    string `json:"id" yaml:"id"`
	Kind  string `json:"kind" yaml:"kind"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// Actors is an expression string; the "key:" prefix denotes a
	// context lookup, anything else is a literal
	Actors       string     `json:"actors,omitempty" yaml:"actors,omitempty"`
	Availability *GuardSpec `json:"availability,omitempty" yaml:"availability,omitempty"`
	DueIn        string     `json:"due_in,omitempty" yaml:"due_in,omitempty"`
	Fork         string     `json:"fork,omitempty" yaml:"fork,omitempty"`
}

// TransitionSpec is the serializable form of a transition.
type TransitionSpec struct {
	From    string     `json:"from" yaml:"from"`
	To      string     `json:"to" yaml:"to"`
	Guard   *GuardSpec `json:"guard,omitempty" yaml:"guard,omitempty"`
	Outcome string     `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Chain   string     `json:"chain,omitempty" yaml:"chain,omitempty"`
}

// GuardSpec is the serializable form of a guard.
type GuardSpec struct {
	Subject string `json:"subject" yaml:"subject"`
	Op      string `json:"op" yaml:"op"`
	Value   string `json:"value" yaml:"value"`
}

// Spec converts a definition into its serializable form.
func (d *Definition) Spec() *DefinitionSpec {
	spec := &DefinitionSpec{
		ID:      d.id,
		Version: d.version,
		Start:   d.start,
	}
	for _, id := range d.order {
		s := d.steps[id]
		ss := StepSpec{
			ID:     s.ID,
			Kind:   string(s.Kind),
			Label:  s.Label,
			Actors: FormatExpression(s.Actors),
			Fork:   s.ForkID,
		}
		if s.Availability != nil {
			ss.Availability = guardSpec(s.Availability)
		}
		if s.DueIn > 0 {
			ss.DueIn = s.DueIn.String()
		}
		spec.Steps = append(spec.Steps, ss)
	}
	for _, id := range d.order {
		for _, t := range d.outgoing[id] {
			ts := TransitionSpec{
				From:    t.From,
				To:      t.To,
				Outcome: t.Outcome,
				Chain:   t.Chain,
			}
			if t.Guard != nil {
				ts.Guard = guardSpec(t.Guard)
			}
			spec.Transitions = append(spec.Transitions, ts)
		}
	}
	return spec
}

func guardSpec(g *Guard) *GuardSpec {
	return &GuardSpec{
		Subject: FormatExpression(g.Subject),
		Op:      string(g.Op),
		Value:   g.Value,
	}
}

func guardFromSpec(gs *GuardSpec) *Guard {
	return &Guard{
		Subject: ParseExpression(gs.Subject),
		Op:      Operator(gs.Op),
		Value:   gs.Value,
	}
}

// Definition materializes a validated Definition from its serializable
// form.
func (spec *DefinitionSpec) Definition() (*Definition, error) {
	b := NewDefinitionBuilder(spec.ID)
	if spec.Version > 0 {
		b.WithVersion(spec.Version)
	}
	for _, ss := range spec.Steps {
		sb := b.AddStep(ss.ID, StepKind(ss.Kind)).WithLabel(ss.Label)
		if ss.Actors != "" {
			sb.WithActors(ParseExpression(ss.Actors))
		}
		if ss.Availability != nil {
			g := guardFromSpec(ss.Availability)
			sb.WithAvailability(g.Subject, g.Op, g.Value)
		}
		if ss.DueIn != "" {
			d, err := time.ParseDuration(ss.DueIn)
			if err != nil {
				return nil, fmt.Errorf("step %s: invalid due_in %q: %w", ss.ID, ss.DueIn, err)
			}
			sb.WithDueIn(d)
		}
		if ss.Fork != "" {
			sb.WithFork(ss.Fork)
		}
		sb.Done()
	}
	for _, ts := range spec.Transitions {
		tb := b.AddTransition(ts.From, ts.To)
		if ts.Guard != nil {
			g := guardFromSpec(ts.Guard)
			tb.WithGuard(g.Subject, g.Op, g.Value)
		}
		if ts.Outcome != "" {
			tb.WithOutcome(ts.Outcome)
		}
		if ts.Chain != "" {
			tb.WithChain(ts.Chain)
		}
		tb.Done()
	}
	return b.SetStart(spec.Start).Build()
}

// ToJSON converts a DefinitionSpec to an indented JSON string.
func (spec *DefinitionSpec) ToJSON() (string, error) {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a DefinitionSpec to a YAML string.
func (spec *DefinitionSpec) ToYAML() (string, error) {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// FromJSON creates a validated Definition from a JSON string.
func FromJSON(jsonStr string) (*Definition, error) {
	var spec DefinitionSpec
	if err := json.Unmarshal([]byte(jsonStr), &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	return spec.Definition()
}

// FromYAML creates a validated Definition from a YAML string.
func FromYAML(yamlStr string) (*Definition, error) {
	var spec DefinitionSpec
	if err := yaml.Unmarshal([]byte(yamlStr), &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	return spec.Definition()
}

// LoadFromJSONFile loads a validated Definition from a JSON file.
func LoadFromJSONFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return FromJSON(string(data))
}

// LoadFromYAMLFile loads a validated Definition from a YAML file.
func LoadFromYAMLFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return FromYAML(string(data))
}
