// Package config provides centralized configuration management for the
// viemd daemon: the HTTP listen address, the wallet agent endpoint, chain
// definition files, sending accounts, submission storage and queue drivers,
// and logging behaviour, all loaded from a single JSON file.
package config
