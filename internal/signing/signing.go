// Package signing selects the keystore profile a build type is signed with.
package signing

import (
	"github.com/eugenenazirov/variant-matrix/internal/gate"
	"github.com/eugenenazirov/variant-matrix/internal/properties"
)

// Property keys consulted for release signing.
const (
	InjectedStoreFileKey     = "android.injected.signing.store.file"
	InjectedStorePasswordKey = "android.injected.signing.store.password"
	InjectedKeyAliasKey      = "android.injected.signing.key.alias"
	InjectedKeyPasswordKey   = "android.injected.signing.key.password"

	ReleaseStoreFileKey     = "MYAPP_RELEASE_STORE_FILE"
	ReleaseStorePasswordKey = "MYAPP_RELEASE_STORE_PASSWORD"
	ReleaseKeyAliasKey      = "MYAPP_RELEASE_KEY_ALIAS"
	ReleaseKeyPasswordKey   = "MYAPP_RELEASE_KEY_PASSWORD"
)

// Profile names.
const (
	ProfileDebug         = "debug"
	ProfileInjected      = "injected"
	ProfileRelease       = "release"
	ProfileDebugFallback = "debug-fallback"
)

// Keystore describes signing material. Passwords are never rendered.
type Keystore struct {
	StoreFile     string
	StorePassword string
	KeyAlias      string
	KeyPassword   string
}

// Profile is the selected signing configuration for a build type.
type Profile struct {
	Name     string
	Keystore Keystore
}

// Lookup is the subset of the property resolver used here.
type Lookup interface {
	Resolve(key, def string) properties.Resolved
}

// Selector picks signing profiles.
type Selector struct {
	props       Lookup
	project     properties.Source
	debugStore  Keystore
	releaseBase Keystore
}

// NewSelector returns a Selector. project holds the properties passed to the
// build directly; only keys present there switch release signing away from
// the fallback. props resolves the MYAPP_RELEASE_* values through the full
// chain. A nil project always selects the fallback for release.
func NewSelector(props Lookup, project properties.Source, debugStore, releaseFallback Keystore) *Selector {
	return &Selector{props: props, project: project, debugStore: debugStore, releaseBase: releaseFallback}
}

// DefaultDebugKeystore mirrors the checked-in debug keystore.
func DefaultDebugKeystore() Keystore {
	return Keystore{StoreFile: "daisy.jks", StorePassword: "pinecone", KeyAlias: "key0", KeyPassword: "pinecone"}
}

// DefaultReleaseFallback is used for release builds when no release keystore is configured.
func DefaultReleaseFallback() Keystore {
	return Keystore{StoreFile: "debug.keystore", StorePassword: "pinecone", KeyAlias: "key0", KeyPassword: "pinecone"}
}

// Select returns the signing profile for buildType. Release prefers a keystore
// injected by the IDE/CI, then the MYAPP_RELEASE_* properties.
func (s *Selector) Select(buildType gate.BuildType) Profile {
	if buildType != gate.Release {
		return Profile{Name: ProfileDebug, Keystore: s.debugStore}
	}

	if injected, ok := s.projectValue(InjectedStoreFileKey); ok {
		return Profile{
			Name: ProfileInjected,
			Keystore: Keystore{
				StoreFile:     injected,
				StorePassword: s.optional(InjectedStorePasswordKey),
				KeyAlias:      s.optional(InjectedKeyAliasKey),
				KeyPassword:   s.optional(InjectedKeyPasswordKey),
			},
		}
	}

	if _, ok := s.projectValue(ReleaseStoreFileKey); ok {
		return Profile{
			Name: ProfileRelease,
			Keystore: Keystore{
				StoreFile:     s.props.Resolve(ReleaseStoreFileKey, "").Value,
				StorePassword: s.props.Resolve(ReleaseStorePasswordKey, "").Value,
				KeyAlias:      s.props.Resolve(ReleaseKeyAliasKey, "").Value,
				KeyPassword:   s.props.Resolve(ReleaseKeyPasswordKey, "").Value,
			},
		}
	}

	return Profile{Name: ProfileDebugFallback, Keystore: s.releaseBase}
}

func (s *Selector) projectValue(key string) (string, bool) {
	if s.project == nil {
		return "", false
	}
	return s.project.Lookup(key)
}

// optional reads an injected key. Injected values come from the project only.
func (s *Selector) optional(key string) string {
	v, _ := s.projectValue(key)
	return v
}
