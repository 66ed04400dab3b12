package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"offerline/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestGeneratedDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("generated default invalid: %v", err)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
auth:
  allow_legacy_actor_header: true
deletion:
  policies:
    users: archive
    requests: purge
authorship:
  organizations: coordinators
suspension:
  default_duration_days: 14
proposals:
  default_expiry_days: 30
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Auth.AllowLegacyActorHeader {
		t.Fatalf("legacy actor header should be enabled")
	}
	if got := cfg.DeletionPolicy("users"); got != config.DeletionArchive {
		t.Fatalf("users policy = %q, want archive", got)
	}
	if got := cfg.DeletionPolicy("unknown_kind"); got != config.DeletionPurge {
		t.Fatalf("unknown kind policy = %q, want purge default", got)
	}
	if cfg.Suspension.DefaultDurationDays != 14 {
		t.Fatalf("suspension days = %d", cfg.Suspension.DefaultDurationDays)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad deletion policy",
			yaml: "deletion:\n  policies:\n    users: shred\nauthorship:\n  organizations: creator\n",
			want: "deletion policy",
		},
		{
			name: "bad authorship",
			yaml: "authorship:\n  organizations: anyone\n",
			want: "authorship.organizations",
		},
		{
			name: "negative suspension",
			yaml: "authorship:\n  organizations: creator\nsuspension:\n  default_duration_days: -1\n",
			want: "default_duration_days",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefault(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaulted config invalid: %v", err)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	content := "authorship:\n  organizations: creator\nsuspension:\n  default_duration_days: 3\n"
	if err := os.WriteFile(filepath.Join(dir, "offerline.yml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Authorship.Organizations != config.AuthorshipCreator {
		t.Fatalf("authorship = %q", cfg.Authorship.Organizations)
	}
	if cfg.Suspension.DefaultDurationDays != 3 {
		t.Fatalf("suspension days = %d", cfg.Suspension.DefaultDurationDays)
	}
}
