// Package config loads, normalizes, and validates ImageFeeder configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the IMAGEFEEDER_API_KEY
// environment fallback. The Config type centralizes every knob the watcher
// daemon and CLI need: directory naming for staging and terminal directories,
// sentinel naming, sequence numbering, admission limits, and the artifact sink.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors. The
// loaded value is passed explicitly to the supervisor and every session; no
// package keeps configuration in globals.
package config
