// Package report turns generated variant configurations into the ordered
// (identity, build type, configuration, enabled) tuples handed to packaging,
// and renders them as a table, JSON or YAML.
package report

import (
	"strings"

	"github.com/eugenenazirov/variant-matrix/internal/gate"
	"github.com/eugenenazirov/variant-matrix/internal/signing"
	"github.com/eugenenazirov/variant-matrix/internal/variant"
)

const secretMask = "****"

// Field is a rendered configuration value.
type Field struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Source string `json:"source" yaml:"source"`
	Secret bool   `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// Entry is one (flavor, build type) pair.
type Entry struct {
	Variant    string  `json:"variant" yaml:"variant"`
	Identity   string  `json:"identity" yaml:"identity"`
	Kind       string  `json:"kind" yaml:"kind"`
	Carrier    string  `json:"carrier,omitempty" yaml:"carrier,omitempty"`
	Channel    string  `json:"channel,omitempty" yaml:"channel,omitempty"`
	BuildType  string  `json:"buildType" yaml:"buildType"`
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	DisabledBy string  `json:"disabledBy,omitempty" yaml:"disabledBy,omitempty"`
	Signing    string  `json:"signing" yaml:"signing"`
	Fields     []Field `json:"fields" yaml:"fields"`
}

// Signing describes the profile selected for a build type.
type Signing struct {
	BuildType string `json:"buildType" yaml:"buildType"`
	Profile   string `json:"profile" yaml:"profile"`
	StoreFile string `json:"storeFile" yaml:"storeFile"`
	KeyAlias  string `json:"keyAlias,omitempty" yaml:"keyAlias,omitempty"`
}

// BuildTypeFields holds the values a build type resolves for itself.
type BuildTypeFields struct {
	BuildType string  `json:"buildType" yaml:"buildType"`
	Fields    []Field `json:"fields" yaml:"fields"`
}

// Report is the full output of one generation run.
type Report struct {
	Sources    []string          `json:"sources" yaml:"sources"`
	Common     []Field           `json:"common" yaml:"common"`
	BuildTypes []BuildTypeFields `json:"buildTypes" yaml:"buildTypes"`
	Signing    []Signing         `json:"signing" yaml:"signing"`
	Entries    []Entry           `json:"entries" yaml:"entries"`
}

// Input collects what Build needs besides the configurations.
type Input struct {
	Sources         []string
	Common          []variant.Field
	BuildTypeFields map[gate.BuildType][]variant.Field
	Signing         map[gate.BuildType]signing.Profile
	GateFunc        func(gate.BuildType, string) gate.Decision
}

// Build expands every configuration across the build types and applies the gate.
func Build(configs []variant.Config, in Input) Report {
	decide := in.GateFunc
	if decide == nil {
		decide = gate.Decide
	}

	r := Report{
		Sources: append([]string(nil), in.Sources...),
		Common:  convertFields(in.Common),
		Entries: make([]Entry, 0, len(configs)*len(gate.BuildTypes())),
	}

	for _, bt := range gate.BuildTypes() {
		if fields, ok := in.BuildTypeFields[bt]; ok {
			r.BuildTypes = append(r.BuildTypes, BuildTypeFields{BuildType: string(bt), Fields: convertFields(fields)})
		}
		if p, ok := in.Signing[bt]; ok {
			r.Signing = append(r.Signing, Signing{
				BuildType: string(bt),
				Profile:   p.Name,
				StoreFile: p.Keystore.StoreFile,
				KeyAlias:  p.Keystore.KeyAlias,
			})
		}
	}

	for _, cfg := range configs {
		fields := convertFields(cfg.Fields())
		for _, bt := range gate.BuildTypes() {
			decision := decide(bt, cfg.Flavor())
			r.Entries = append(r.Entries, Entry{
				Variant:    VariantName(cfg.Flavor(), bt),
				Identity:   cfg.Flavor(),
				Kind:       string(cfg.Kind()),
				Carrier:    cfg.Carrier(),
				Channel:    cfg.Channel(),
				BuildType:  string(bt),
				Enabled:    decision.Enabled,
				DisabledBy: decision.Rule,
				Signing:    in.Signing[bt].Name,
				Fields:     cloneFields(fields),
			})
		}
	}
	return r
}

// VariantName joins flavor and build type the way packaging names artifacts,
// e.g. "tmobileStagingDebug".
func VariantName(flavor string, bt gate.BuildType) string {
	s := string(bt)
	if s == "" {
		return flavor
	}
	return flavor + strings.ToUpper(s[:1]) + s[1:]
}

// Masked returns a copy with non-empty secret values replaced.
func (r Report) Masked() Report {
	out := r.Clone()
	maskFields(out.Common)
	for i := range out.BuildTypes {
		maskFields(out.BuildTypes[i].Fields)
	}
	for i := range out.Entries {
		maskFields(out.Entries[i].Fields)
	}
	return out
}

// Filter selects entries. Zero values match everything; a nil Enabled
// matches both enabled and disabled entries.
type Filter struct {
	BuildType gate.BuildType
	Enabled   *bool
	Identity  string
}

// OnlyEnabled is shorthand for a Filter.Enabled value.
func OnlyEnabled(enabled bool) *bool {
	return &enabled
}

// Filter returns a copy holding only matching entries.
func (r Report) Filter(f Filter) Report {
	out := r.Clone()
	out.Entries = out.Entries[:0]
	for _, e := range r.Entries {
		if f.BuildType != "" && e.BuildType != string(f.BuildType) {
			continue
		}
		if f.Enabled != nil && e.Enabled != *f.Enabled {
			continue
		}
		if f.Identity != "" && !strings.EqualFold(e.Identity, f.Identity) && !strings.EqualFold(e.Variant, f.Identity) {
			continue
		}
		e.Fields = cloneFields(e.Fields)
		out.Entries = append(out.Entries, e)
	}
	return out
}

// EnabledCount returns the number of enabled entries.
func (r Report) EnabledCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Enabled {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r Report) Clone() Report {
	out := Report{
		Sources: append([]string(nil), r.Sources...),
		Common:  cloneFields(r.Common),
		Signing: append([]Signing(nil), r.Signing...),
		Entries: make([]Entry, len(r.Entries)),
	}
	if r.BuildTypes != nil {
		out.BuildTypes = make([]BuildTypeFields, len(r.BuildTypes))
		for i, bt := range r.BuildTypes {
			bt.Fields = cloneFields(bt.Fields)
			out.BuildTypes[i] = bt
		}
	}
	for i, e := range r.Entries {
		e.Fields = cloneFields(e.Fields)
		out.Entries[i] = e
	}
	return out
}

func convertFields(in []variant.Field) []Field {
	out := make([]Field, 0, len(in))
	for _, f := range in {
		out = append(out, Field{Name: f.Name, Value: f.Value, Source: f.Source, Secret: variant.IsSecret(f.Name)})
	}
	return out
}

func cloneFields(in []Field) []Field {
	out := make([]Field, len(in))
	copy(out, in)
	return out
}

func maskFields(fields []Field) {
	for i := range fields {
		if fields[i].Secret && fields[i].Value != "" {
			fields[i].Value = secretMask
		}
	}
}
