// Package config loads runtime configuration from multiple sources (a .env file,
// YAML files, environment variables, CLI flags) with precedence: CLI flags >
// Environment variables > YAML config > Defaults. Values from the .env file are
// loaded into the environment first and never replace variables that are already
// set. It exposes strongly typed settings to the rest of the application and
// refuses to start without a token signing secret.
package config
