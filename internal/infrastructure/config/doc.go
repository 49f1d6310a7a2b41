// Package config loads and validates Boardflow Core configuration.
//
// Values come from three layers, later layers winning:
//   - built-in defaults
//   - a YAML file
//   - BOARDFLOW_* environment variables
//
// Secrets (MQTT password, Redis password, InfluxDB token) should be supplied
// through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
