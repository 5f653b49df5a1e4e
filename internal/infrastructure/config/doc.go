// Package config loads and validates the hub configuration.
//
// Values come from a YAML file (GRAYHUB_CONFIG, default configs/config.yaml),
// then GRAYHUB_* environment variables override them. Inside a Home Assistant
// add-on, SUPERVISOR_TOKEN supplies the platform token when none is set.
// Validate reports every problem at once rather than stopping at the first.
//
// Keep the Home Assistant token and the JWT secret out of the file where
// possible:
//
//	GRAYHUB_HOME_ASSISTANT_TOKEN=... GRAYHUB_JWT_SECRET=... grayhub
//
// Usage:
//
//	cfg, err := config.Load(getConfigPath())
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	fmt.Println(cfg.HomeAssistant.URL)
package config
