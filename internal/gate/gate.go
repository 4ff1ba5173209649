// Package gate decides whether a (build type, variant) pair is materialised.
// Debug artifacts never carry production configuration, and release
// artifacts of internal or staging channels are never shipped.
package gate

import (
	"errors"
	"fmt"
	"strings"
)

// BuildType is the packaging mode of a variant.
type BuildType string

const (
	Debug   BuildType = "debug"
	Release BuildType = "release"
)

// ErrUnknownBuildType is returned by ParseBuildType for anything but debug/release.
var ErrUnknownBuildType = errors.New("unknown build type")

// BuildTypes returns every build type in generation order.
func BuildTypes() []BuildType {
	return []BuildType{Debug, Release}
}

// DefaultEnvironment is the ENVIRONMENT value a build type carries when no
// property source sets one.
func (b BuildType) DefaultEnvironment() string {
	if b == Release {
		return "PROD"
	}
	return "DEBUG"
}

// ParseBuildType accepts "debug" or "release" in any case.
func ParseBuildType(raw string) (BuildType, error) {
	switch BuildType(strings.ToLower(strings.TrimSpace(raw))) {
	case Debug:
		return Debug, nil
	case Release:
		return Release, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBuildType, raw)
	}
}

// Class is the set of channel categories a variant name falls into.
type Class struct {
	Production bool
	Staging    bool
	Internal   bool
}

var internalMarkers = []string{"dev", "qa", "sandbox"}

// Classify matches the fixed markers case-insensitively. A name may fall into
// several categories at once.
func Classify(variant string) Class {
	name := strings.ToLower(variant)
	c := Class{
		Production: strings.Contains(name, "production"),
		Staging:    strings.Contains(name, "staging"),
	}
	for _, marker := range internalMarkers {
		if strings.Contains(name, marker) {
			c.Internal = true
			break
		}
	}
	return c
}

// Rule disables a variant when Match holds.
type Rule struct {
	Name    string
	Match   func(BuildType, Class) bool
	Enabled bool
}

// Rules is the ordered rule table. The first matching rule decides.
var Rules = []Rule{
	{
		Name:  "production-debug",
		Match: func(bt BuildType, c Class) bool { return c.Production && bt == Debug },
	},
	{
		Name:  "internal-release",
		Match: func(bt BuildType, c Class) bool { return c.Internal && bt == Release },
	},
	{
		Name:  "staging-release",
		Match: func(bt BuildType, c Class) bool { return c.Staging && bt == Release },
	},
}

// Decision is the outcome of evaluating the rule table.
type Decision struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Rule    string `json:"rule,omitempty" yaml:"rule,omitempty"`
}

// Decide evaluates Rules against the pair and names the rule that decided, if any.
func Decide(buildType BuildType, variant string) Decision {
	return DecideWith(Rules, buildType, variant)
}

// DecideWith evaluates an explicit rule table.
func DecideWith(rules []Rule, buildType BuildType, variant string) Decision {
	class := Classify(variant)
	for _, rule := range rules {
		if rule.Match(buildType, class) {
			return Decision{Enabled: rule.Enabled, Rule: rule.Name}
		}
	}
	return Decision{Enabled: true}
}

// IsEnabled reports whether the variant is built for buildType.
func IsEnabled(buildType BuildType, variant string) bool {
	return Decide(buildType, variant).Enabled
}
