// Package config handles loading and validating nvdisplay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with NVDISPLAY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// One-shot commands use LoadOrDefault so that no file is required; the
// API server additionally calls ValidateServe.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.LoadOrDefault(config.PathFromEnv())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Path)
package config
