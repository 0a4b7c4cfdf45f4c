package process

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocate(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	deep := writeExecutable(t, first, filepath.Join("a", "b", "c", "Plex Media Server"))
	shallow := writeExecutable(t, first, filepath.Join("plexmediaserver", "Plex Media Server"))
	other := writeExecutable(t, second, "Plex Media Server")

	if err := os.WriteFile(filepath.Join(first, "Plex Media Server"), []byte("not executable"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		roots  []string
		want   string
		wantOK bool
	}{
		{"shallowest executable wins", []string{first}, shallow, true},
		{"earlier root wins", []string{second, first}, other, true},
		{"missing root is skipped", []string{filepath.Join(first, "nope"), second}, other, true},
		{"file root is skipped", []string{deep, second}, other, true},
		{"no roots", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Locate("Plex Media Server", tt.roots)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Locate() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLocate_NotFound(t *testing.T) {
	root := t.TempDir()
	writeExecutable(t, root, filepath.Join("bin", "Plex Media Scanner"))

	if got, ok := Locate("Plex Media Server", []string{root}); ok {
		t.Errorf("Locate() = %q, want not found", got)
	}
}

func TestLocate_LiteralMetacharacters(t *testing.T) {
	root := t.TempDir()
	writeExecutable(t, root, filepath.Join("x", "Plex A"))
	want := writeExecutable(t, root, filepath.Join("y", "Plex [beta]"))

	got, ok := Locate("Plex [beta]", []string{root})
	if !ok || got != want {
		t.Errorf("Locate() = (%q, %v), want %q", got, ok, want)
	}
	if got, ok := Locate("Plex *", []string{root}); ok {
		t.Errorf("wildcard name should not match literally, got %q", got)
	}
}

func TestLocate_RejectsPaths(t *testing.T) {
	root := t.TempDir()
	writeExecutable(t, root, filepath.Join("bin", "tool"))
	if _, ok := Locate("bin/tool", []string{root}); ok {
		t.Error("names containing a separator should be rejected")
	}
	if _, ok := Locate("", []string{root}); ok {
		t.Error("empty name should be rejected")
	}
}

func TestResolveExecutableNotFound(t *testing.T) {
	_, err := resolveExecutable(filepath.Join(t.TempDir(), "Plex Media Server"), []string{t.TempDir()})
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("resolveExecutable() = %v, want ErrExecutableNotFound", err)
	}
}

func TestResolveExecutable(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(t *testing.T, dir, root string) string
		wantConfigured bool
		wantDiscovered bool
	}{
		{
			name: "executable configured file",
			setup: func(t *testing.T, dir, _ string) string {
				return writeExecutable(t, dir, "Plex Media Server")
			},
			wantConfigured: true,
		},
		{
			name: "configured file without execute bit",
			setup: func(t *testing.T, dir, root string) string {
				writeExecutable(t, root, "Plex Media Server")
				path := filepath.Join(dir, "Plex Media Server")
				if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
					t.Fatal(err)
				}
				return path
			},
			wantConfigured: true,
		},
		{
			name: "configured path is a directory",
			setup: func(t *testing.T, dir, root string) string {
				writeExecutable(t, root, "Plex Media Server")
				path := filepath.Join(dir, "Plex Media Server")
				if err := os.Mkdir(path, 0o755); err != nil {
					t.Fatal(err)
				}
				return path
			},
			wantDiscovered: true,
		},
		{
			name: "configured path missing",
			setup: func(t *testing.T, dir, root string) string {
				writeExecutable(t, root, "Plex Media Server")
				return filepath.Join(dir, "Plex Media Server")
			},
			wantDiscovered: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, root := t.TempDir(), t.TempDir()
			configured := tt.setup(t, dir, root)

			res, err := resolveExecutable(configured, []string{root})
			if err != nil {
				t.Fatalf("resolveExecutable() error = %v", err)
			}
			if tt.wantConfigured && res.Path != configured {
				t.Errorf("Path = %q, want configured %q", res.Path, configured)
			}
			if res.Discovered != tt.wantDiscovered {
				t.Errorf("Discovered = %v, want %v", res.Discovered, tt.wantDiscovered)
			}
			if tt.wantDiscovered && res.Path != filepath.Join(root, "Plex Media Server") {
				t.Errorf("Path = %q, want the copy under %s", res.Path, root)
			}
		})
	}
}

func TestEscapeMeta(t *testing.T) {
	tests := map[string]string{
		"Plex Media Server": "Plex Media Server",
		"a*b":               `a\*b`,
		"[x]{y}?":           `\[x\]\{y\}\?`,
		`back\slash`:        `back\\slash`,
	}
	for in, want := range tests {
		if got := escapeMeta(in); got != want {
			t.Errorf("escapeMeta(%q) = %q, want %q", in, got, want)
		}
	}
}
