// Package config provides configuration management for the image generation service.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values have sensible defaults for development use: the
// procedural pipeline with in-memory events and records, listening on 7860.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
