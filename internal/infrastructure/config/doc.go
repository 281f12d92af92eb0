// Package config loads and validates TermFleet Core configuration.
//
// Configuration is primarily a YAML file (configs/config.yaml) with
// environment variable overrides for secrets and deployment-specific
// values. Device terminals can be declared either as a structured list in
// YAML or through the numbered DEVICE_N_* environment scheme, which is
// convenient for container deployments.
//
// The loaded Config is immutable by convention: it is built once at
// startup and passed by value or pointer to the components that need it.
package config
