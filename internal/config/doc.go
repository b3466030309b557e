// Package config loads the declarative configuration that parameterizes a
// checkout: the per-mount config.toml (CheckoutConfig) and the
// eden-dir-wide config.json client directory map (spec.md §4.3, §6).
package config
