package session

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/showroom/internal/config"
)

const DefaultProfile = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to profile naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve picks the active profile: the flag, then config.toml
// default_profile, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultProfile
}

// LoadConfig reads config.toml (defaults when absent), overlays the dotenv
// file and SHOWROOM_* variables, and validates the result.
func LoadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(EnvPath(), ".env"); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
