package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/showroom/internal/config"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid single char", "a", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(baseDirEnv, t.TempDir())

	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q", got)
	}
	if got := Resolve(""); got != DefaultProfile {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultProfile)
	}

	cfg := config.Default()
	cfg.DefaultProfile = "work"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Errorf("Resolve() = %q, want work from config", got)
	}
}

func TestLoadConfigValidates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(baseDirEnv, dir)
	t.Setenv(config.EnvEmail, "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() without identity email should fail validation")
	}

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SHOWROOM_EMAIL=me@example.com\n"), 0600); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv(config.EnvEmail)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Identity.Email != "me@example.com" {
		t.Errorf("Email = %q", cfg.Identity.Email)
	}
}
