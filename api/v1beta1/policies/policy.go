// Package policies provides the Policy configuration type for ppscan.
package policies

import (
	"bytes"
	"fmt"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/partnerwatch/ppscan/api"
	"github.com/partnerwatch/ppscan/api/v1beta1"
	"github.com/partnerwatch/ppscan/pkg/rule"
	"github.com/partnerwatch/ppscan/pkg/scan"
	"github.com/partnerwatch/ppscan/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen/policy/main.go -o policies.v1beta1.json

var (
	//go:embed policy.yaml
	defaultPolicyYAML []byte

	//go:embed policies.v1beta1.json
	policySchemaJSON []byte

	// ValidKinds contains the valid kind values for policy configurations.
	ValidKinds = []string{"Policy"}

	// DefaultValidator validates policy configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator("/policies.v1beta1.json", policySchemaJSON)

	// Compile-time interface checks.
	_ v1beta1.Object = (*Policy)(nil)
)

// Default window sizes, used when scan settings omit them.
const (
	DefaultSnippetChars         = 260
	DefaultQualifierWindowChars = 400
	DefaultProximityWindowChars = 250
)

// ScanSettings are the global knobs shared by all rules.
type ScanSettings struct {
	// RequireSubjectContext enables the subject context gate.
	RequireSubjectContext *bool `json:"requireSubjectContext,omitempty" jsonschema:"title=Require Subject Context"`
	// SubjectContextMode selects page-level or match-proximity gating.
	// Page-level is the historical default; match-proximity additionally
	// requires the subject within SubjectContextWindowChars of each match.
	SubjectContextMode scan.GateMode `json:"subjectContextMode,omitempty" jsonschema:"title=Subject Context Mode"`
	// SubjectContextWindowChars is the match-proximity gate window.
	SubjectContextWindowChars int `json:"subjectContextWindowChars,omitempty" jsonschema:"title=Subject Context Window Chars"`
	// SnippetChars is the approximate length of finding snippets.
	SnippetChars int `json:"snippetChars,omitempty" jsonschema:"title=Snippet Chars"`
	// QualifierWindowChars is the default qualifier search window.
	QualifierWindowChars int `json:"qualifierWindowChars,omitempty" jsonschema:"title=Qualifier Window Chars"`
	// ProximityWindowChars is the default co-occurrence window.
	ProximityWindowChars int `json:"proximityWindowChars,omitempty" jsonschema:"title=Proximity Window Chars"`
}

// EnsureDefaults initializes unset fields to their default values.
func (s *ScanSettings) EnsureDefaults() {
	if s.RequireSubjectContext == nil {
		t := true
		s.RequireSubjectContext = &t
	}

	if s.SubjectContextMode == "" {
		s.SubjectContextMode = scan.GateModePage
	}

	if s.SnippetChars == 0 {
		s.SnippetChars = DefaultSnippetChars
	}

	if s.QualifierWindowChars == 0 {
		s.QualifierWindowChars = DefaultQualifierWindowChars
	}

	if s.ProximityWindowChars == 0 {
		s.ProximityWindowChars = DefaultProximityWindowChars
	}
}

// Org identifies the subject organization the scan is about.
type Org struct {
	// Name is the primary subject name.
	Name string `json:"name,omitempty" jsonschema:"title=Name"`
	// NameVariants are the subject's aliases, including formal/legal
	// variants, matched literally and case-insensitively.
	NameVariants []string `json:"nameVariants,omitempty" jsonschema:"title=Name Variants"`
}

// Variants returns all subject names, primary name first.
func (o *Org) Variants() []string {
	var variants []string
	if o.Name != "" {
		variants = append(variants, o.Name)
	}

	for _, v := range o.NameVariants {
		if v != "" && v != o.Name {
			variants = append(variants, v)
		}
	}

	return variants
}

// Policy represents the policy configuration file. A loaded policy is
// immutable for the duration of a run and shared read-only by all page
// evaluations.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Policy struct {
	// Scan holds the global scan settings.
	Scan *ScanSettings `json:"scan,omitempty" jsonschema:"title=Scan"`
	// Org identifies the subject organization.
	Org *Org `json:"org,omitempty" jsonschema:"title=Org"`
	// Qualifiers maps qualifier group names to phrase lists.
	Qualifiers map[string][]string `json:"qualifiers,omitempty" jsonschema:"title=Qualifiers"`
	// Rules is the ordered list of detection rules. Order affects report
	// order, not correctness.
	Rules []*rule.Rule `json:"rules,omitempty" jsonschema:"title=Rules"`
	// Suppressions is the ordered list of confirmed false positives.
	Suppressions     []*scan.Suppression `json:"suppressions,omitempty" jsonschema:"title=Suppressions"`
	v1beta1.TypeMeta `json:",inline"`
}

// New creates a new [Policy] with default values.
func New() *Policy {
	p := &Policy{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       "Policy",
		},
	}
	p.EnsureDefaults()

	return p
}

// EnsureDefaults initializes nil fields to their default values.
func (p *Policy) EnsureDefaults() {
	if p.Scan == nil {
		p.Scan = &ScanSettings{}
	}

	p.Scan.EnsureDefaults()

	if p.Org == nil {
		p.Org = &Org{}
	}

	if p.Qualifiers == nil {
		p.Qualifiers = map[string][]string{}
	}

	if p.Suppressions == nil {
		p.Suppressions = []*scan.Suppression{}
	}
}

// Windows returns the default window sizes for rule compilation.
func (p *Policy) Windows() rule.Windows {
	return rule.Windows{
		Snippet:   p.Scan.SnippetChars,
		Qualifier: p.Scan.QualifierWindowChars,
		Proximity: p.Scan.ProximityWindowChars,
	}
}

// Validate compiles all rules and checks policy-wide invariants. It reports
// the first problem found, identified by rule index/ID or suppression index,
// so the policy file can be fixed. A policy that fails validation must abort
// the run before any page is fetched.
func (p *Policy) Validate() error {
	if p.Scan.SubjectContextMode == scan.GateModeMatch && p.Scan.SubjectContextWindowChars <= 0 {
		return fmt.Errorf("scan: subject context mode %q requires a positive window", scan.GateModeMatch)
	}

	windows := p.Windows()
	seen := make(map[string]struct{}, len(p.Rules))

	for i, r := range p.Rules {
		if r == nil {
			return fmt.Errorf("rule %d: empty entry", i)
		}

		err := r.Compile(p.Qualifiers, windows)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}

		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("rule %d: duplicate id %q", i, r.ID)
		}

		seen[r.ID] = struct{}{}
	}

	for i, s := range p.Suppressions {
		if s == nil {
			return fmt.Errorf("suppression %d: empty entry", i)
		}

		err := s.Validate()
		if err != nil {
			return fmt.Errorf("suppression %d: %w", i, err)
		}
	}

	return nil
}

// Gate builds the subject context gate from the scan settings.
func (p *Policy) Gate() (*scan.ContextGate, error) {
	gate, err := scan.NewContextGate(scan.GateConfig{
		SubjectVariants: p.Org.Variants(),
		Mode:            p.Scan.SubjectContextMode,
		WindowChars:     p.Scan.SubjectContextWindowChars,
		Require:         *p.Scan.RequireSubjectContext,
	})
	if err != nil {
		return nil, fmt.Errorf("build context gate: %w", err)
	}

	return gate, nil
}

// Engine builds a scan engine for this policy. The policy must have been
// validated first.
func (p *Policy) Engine() (*scan.Engine, error) {
	gate, err := p.Gate()
	if err != nil {
		return nil, err
	}

	engine, err := scan.NewEngine(
		scan.WithRules(p.Rules),
		scan.WithContextGate(gate),
		scan.WithSuppressions(p.Suppressions),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return engine, nil
}

func (p Policy) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the policy to YAML.
func (p Policy) MarshalYAML() ([]byte, error) {
	type alias Policy

	b, err := api.MarshalYAML(alias(p))
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}

	return b, nil
}

// Write writes the policy to the specified path if it doesn't already exist.
func (p Policy) Write(path string) error {
	b, err := p.MarshalYAML()
	if err != nil {
		return err
	}

	err = api.WriteIfNotExists(path, b)
	if err != nil {
		return fmt.Errorf("write policy: %w", err)
	}

	return nil
}

// WriteDefault writes the embedded default policy.yaml to the specified path.
func WriteDefault(path string, force bool) error {
	err := api.WriteDefaultFile(path, defaultPolicyYAML, force, "policy")
	if err != nil {
		return fmt.Errorf("write default policy: %w", err)
	}

	return nil
}

// Loader loads and validates policy files.
type Loader struct {
	yamlError *yaml.ErrorWrapper
	data      []byte
}

// NewLoaderFromBytes creates a [Loader] from byte data.
func NewLoaderFromBytes(data []byte) *Loader {
	return &Loader{
		data: data,
		yamlError: yaml.NewErrorWrapper(
			yaml.WithSource(data),
		),
	}
}

// NewLoaderFromFile creates a [Loader] from a file path.
func NewLoaderFromFile(path string) (*Loader, error) {
	data, err := api.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	return NewLoaderFromBytes(data), nil
}

// Validate validates the policy data against the embedded JSON schema.
func (l *Loader) Validate() error {
	var anyPolicy any

	dec := yaml.NewDecoder(bytes.NewReader(l.data))

	err := dec.Decode(&anyPolicy)
	if err != nil {
		return l.yamlError.Wrap(err)
	}

	err = DefaultValidator.Validate(anyPolicy)
	if err != nil {
		return l.yamlError.Wrap(err)
	}

	return nil
}

// Load parses, defaults, and semantically validates the policy, compiling
// every rule. Any malformed pattern or guard expression fails here.
func (l *Loader) Load() (*Policy, error) {
	p := New()

	dec := yaml.NewDecoder(bytes.NewReader(l.data))

	err := dec.Decode(p)
	if err != nil {
		return nil, l.yamlError.Wrap(err)
	}

	p.EnsureDefaults()

	err = p.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return p, nil
}
