package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/glimpse/internal/compositor"
	"github.com/dyluth/glimpse/internal/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		subdir    string
		setupFunc func(string)
		wantErr   bool
	}{
		{
			name:      "fresh initialization",
			force:     false,
			setupFunc: func(dir string) {},
			wantErr:   false,
		},
		{
			name:  "force initialization replaces existing config",
			force: true,
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644)
			},
			wantErr: false,
		},
		{
			name:      "nested directory is created",
			force:     false,
			subdir:    "rig-a",
			setupFunc: func(dir string) {},
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			tt.setupFunc(tmpDir)

			target := filepath.Join(tmpDir, tt.subdir)

			path, err := Initialize(target, tt.force)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if path != filepath.Join(target, ConfigFile) {
				t.Errorf("Initialize() path = %s, want %s", path, filepath.Join(target, ConfigFile))
			}

			cfg, err := config.Load(path)
			if err != nil {
				t.Fatalf("created config does not load: %v", err)
			}
			if cfg.Session.Trials != 100 {
				t.Errorf("expected 100 trials, got %d", cfg.Session.Trials)
			}
			if *cfg.Grid.Rows != 32 || *cfg.Grid.Cols != 32 {
				t.Errorf("expected 32x32 grid, got %dx%d", *cfg.Grid.Rows, *cfg.Grid.Cols)
			}
		})
	}
}

func TestTemplate_MatchesDefaults(t *testing.T) {
	content, err := Template()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), ConfigFile)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	got := cfg.Settings()
	want := config.Default().Settings()
	if got.CueDuration != want.CueDuration || got.StimulusDuration != want.StimulusDuration ||
		got.MinOnset != want.MinOnset || got.MaxOnset != want.MaxOnset || got.RTDelay != want.RTDelay {
		t.Errorf("template timing differs from defaults: got %+v, want %+v", got, want)
	}
	if len(got.Quadrants) != len(compositor.AllQuadrants) {
		t.Errorf("expected %d quadrants, got %d", len(compositor.AllQuadrants), len(got.Quadrants))
	}
	mask := compositor.DefaultMaskParams()
	if cfg.Target.Mask.Sigma != mask.Sigma || cfg.Target.Mask.Spacing != mask.Spacing {
		t.Errorf("template mask %+v differs from default %+v", *cfg.Target.Mask, mask)
	}
}

func TestHandleForce(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ConfigFile)

	// Nothing to remove
	if err := handleForce(path); err != nil {
		t.Fatalf("handleForce() on missing file: %v", err)
	}

	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := handleForce(path); err != nil {
		t.Fatalf("handleForce() error = %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Errorf("%s should have been removed", ConfigFile)
	}
}
