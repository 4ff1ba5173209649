// Package variant expands the fixed internal environments and an ordered
// carrier list into named build flavors, each carrying its resolved
// configuration fields. Output order depends only on the inputs so successive
// runs can be diffed.
package variant
