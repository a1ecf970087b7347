package paths

import (
	"os"
	"path/filepath"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDirRel", DataDirRel, ".guardiancord"},
		{"PIDFile", PIDFile, "daemon.pid"},
		{"ConfigFile", ConfigFile, "config.toml"},
		{"LogFile", LogFile, "daemon.log"},
		{"MembershipCacheFile", MembershipCacheFile, "membership-cache.json"},
		{"BinaryName", BinaryName, "guardiancord"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DataDir Method Tests
// ///////////////////////////////////////////////

func TestDataDirMethods(t *testing.T) {
	root := filepath.Join("home", "user", DataDirRel)
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PID", d.PID(), filepath.Join(root, PIDFile)},
		{"Config", d.Config(), filepath.Join(root, ConfigFile)},
		{"Log", d.Log(), filepath.Join(root, LogFile)},
		{"MembershipCache", d.MembershipCache(), filepath.Join(root, MembershipCacheFile)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Default and Ensure Tests
// ///////////////////////////////////////////////

func TestDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	want := filepath.Join(home, DataDirRel)
	if got := Default().Root; got != want {
		t.Errorf("Default().Root = %q, want %q", got, want)
	}
}

func TestEnsure(t *testing.T) {
	d := DataDir{Root: filepath.Join(t.TempDir(), "a", "b")}
	for range 2 {
		if err := d.Ensure(); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}
	info, err := os.Stat(d.Root)
	if err != nil || !info.IsDir() {
		t.Errorf("Ensure did not create %s: %v", d.Root, err)
	}
}
