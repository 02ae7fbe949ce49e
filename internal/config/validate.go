package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for structural problems. Provider API
// keys are intentionally not required here: a worker that never touches a
// provider should start without its credentials, and adapters report missing
// keys as configuration errors at call time.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q is not one of console, json", c.LogFormat))
	}
	if c.ScriptGen.Primary.BaseURL == "" {
		problems = append(problems, "scriptgen.primary.base_url must not be empty")
	}
	if c.Speech.BaseURL == "" {
		problems = append(problems, "speech.base_url must not be empty")
	}
	if c.VideoSynth.BaseURL == "" {
		problems = append(problems, "videosynth.base_url must not be empty")
	}
	if c.Storage.Bucket != "" && c.Storage.Endpoint == "" {
		problems = append(problems, "storage.endpoint (or storage.account_id) is required when storage.bucket is set")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
