// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Secrets never live in the file: the admin API key and the alert relay
// URLs are named by *_env fields and resolved from the environment at use
// time. Load(path) applies defaults before unmarshalling, then validates.
// Watch reloads the file on change so alerting and monitor tuning can be
// adjusted without a restart.
package config
