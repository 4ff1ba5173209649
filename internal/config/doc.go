// Package config loads the run configuration of the variants tool from multiple
// sources (YAML or TOML files, environment variables, CLI flags) with precedence:
// CLI flags > config file > environment variables > defaults. It names the
// property files the resolver reads, the carrier and environment lists the
// generator expands, and the settings of serve mode.
package config
