package app

import "errors"

// Config holds everything an App instance needs from its caller.
type Config struct {
	JobPath    string // hcl file or directory of hcl files
	ScenePath  string // scene json
	Jobs       []string
	OutputRoot string // overrides every job's output root when set
	ConfigPath string // engine settings yaml

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// NewConfig validates cfg for the run operation.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.JobPath == "" {
		return nil, errors.New("JobPath is a required configuration field and cannot be empty")
	}
	if cfg.ScenePath == "" {
		return nil, errors.New("ScenePath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
