// Package config defines the governor's configuration: an optional YAML
// file layered under FARA_* environment overrides, with defaults applied
// first and validation last. Environment variables always win over the
// file.
package config
