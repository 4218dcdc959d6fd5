// Package config handles loading and validating Flora Core configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables (PORT, FLORA_*)
//   - Validation of required fields
//   - Default value handling
//
// The server and the dashboard share one file; each reads its own section.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
