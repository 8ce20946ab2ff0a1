// Package config provides the configuration of levelcrawl: engine budgets,
// fetch settings, output preferences and the optional .levelcrawl file with
// per-site overrides.
package config
