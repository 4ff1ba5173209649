// Package properties resolves build properties from an ordered chain of
// sources: caller overrides, a developer-private secrets file (or its
// checked-in fallback, never both), a local properties file, and the process
// environment. A key no source holds degrades to the caller's default and is
// logged as a warning.
package properties
