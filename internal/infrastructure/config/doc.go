// Package config handles loading and validating gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Merging an optional .env file into the environment
//   - Overriding with GRAYLOGIC_* environment variables
//   - Validation of required fields
//   - Replacing out-of-range policy values with defaults
//
// Security Considerations:
//   - Broker passwords and database tokens should be set via environment
//     variables or the .env file, never committed in config.yaml
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, warnings, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range warnings {
//	    logger.Warn("configuration adjusted", "detail", w)
//	}
package config
