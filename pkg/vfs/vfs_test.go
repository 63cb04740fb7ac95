package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestVirtualDisk_WriteRead(t *testing.T) {
	tests := []struct {
		name        string
		setup       map[string]string
		path        string
		expected    string
		expectError error
	}{
		{
			name:     "Read existing file",
			setup:    map[string]string{"/proj/main.flow": "@out |."},
			path:     "/proj/main.flow",
			expected: "@out |.",
		},
		{
			name:     "Path is cleaned",
			setup:    map[string]string{"/proj/lib/a.flow": "@a |."},
			path:     "/proj/lib/../lib/./a.flow",
			expected: "@a |.",
		},
		{
			name:        "Missing file",
			setup:       map[string]string{"/proj/main.flow": ""},
			path:        "/proj/other.flow",
			expectError: ErrFileNotFound,
		},
		{
			name:        "Empty path",
			path:        "",
			expectError: ErrInvalidPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vd := NewVirtualDisk()
			for p, content := range tt.setup {
				if err := vd.WriteString(p, content); err != nil {
					t.Fatalf("WriteString(%q) failed: %v", p, err)
				}
			}

			data, err := vd.ReadFile(tt.path)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Fatalf("expected %v, got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, data)
			}
		})
	}
}

func TestVirtualDisk_DeepCopy(t *testing.T) {
	vd := NewVirtualDisk()
	data := []byte("@a |.")
	if err := vd.Write("/a.flow", data); err != nil {
		t.Fatal(err)
	}

	data[0] = '#'
	got, _ := vd.ReadFile("/a.flow")
	if string(got) != "@a |." {
		t.Errorf("write did not copy input: %q", got)
	}

	got[0] = '#'
	again, _ := vd.ReadFile("/a.flow")
	if string(again) != "@a |." {
		t.Errorf("read did not copy output: %q", again)
	}
}

func TestVirtualDisk_Overwrite(t *testing.T) {
	vd := NewVirtualDisk()
	_ = vd.WriteString("/a.flow", "one")
	first, err := vd.Modified("/a.flow")
	if err != nil {
		t.Fatal(err)
	}
	_ = vd.WriteString("/a.flow", "two")

	got, _ := vd.ReadFile("/a.flow")
	if string(got) != "two" {
		t.Errorf("expected overwrite, got %q", got)
	}
	second, _ := vd.Modified("/a.flow")
	if second.Before(first) {
		t.Errorf("modified time went backwards: %v then %v", first, second)
	}
}

func TestVirtualDisk_List(t *testing.T) {
	vd := NewVirtualDisk()
	for _, p := range []string{"/b.flow", "/a.flow", "/c/../c/d.flow"} {
		_ = vd.WriteString(p, p)
	}

	if got, want := vd.List(), []string{"/a.flow", "/b.flow", "/c/d.flow"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if _, err := vd.Modified("/none.flow"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Modified on a missing file: expected ErrFileNotFound, got %v", err)
	}
}

func TestVirtualDisk_Overlay(t *testing.T) {
	lower := NewVirtualDisk()
	_ = lower.WriteString("/lib.flow", "lower lib")
	_ = lower.WriteString("/main.flow", "lower main")

	upper := NewVirtualDisk()
	upper.Lower = lower
	_ = upper.WriteString("/main.flow", "unsaved main")

	got, err := upper.ReadFile("/main.flow")
	if err != nil || string(got) != "unsaved main" {
		t.Errorf("upper layer should win: %q, %v", got, err)
	}
	got, err = upper.ReadFile("/lib.flow")
	if err != nil || string(got) != "lower lib" {
		t.Errorf("miss should fall through: %q, %v", got, err)
	}
	if _, err := upper.ReadFile("/none.flow"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound from lower layer, got %v", err)
	}
}

func TestVirtualDisk_LoadFrom(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"main.flow":       "@out |$a|.",
		"lib/common.flow": "@a |.",
		"notes.md":        "not a flow file",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	vd := NewVirtualDisk()
	if err := vd.LoadFrom(dir); err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	root, _ := filepath.Abs(dir)
	want := []string{filepath.Join(root, "lib/common.flow"), filepath.Join(root, "main.flow")}
	if got := vd.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	if err := NewVirtualDisk().LoadFrom(filepath.Join(dir, "missing")); err != nil {
		t.Errorf("LoadFrom on a missing dir should be a no-op, got %v", err)
	}
}

func TestOSDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.flow")
	if err := os.WriteFile(path, []byte("@a |."), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := OSDisk{}.ReadFile(path)
	if err != nil || string(got) != "@a |." {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
	if _, err := (OSDisk{}).ReadFile(filepath.Join(dir, "missing.flow")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestPathInfo(t *testing.T) {
	full, parent, err := PathInfo("docs/main.flow")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(full) {
		t.Errorf("expected absolute path, got %q", full)
	}
	if filepath.Base(full) != "main.flow" || filepath.Base(parent) != "docs" {
		t.Errorf("unexpected split: %q %q", full, parent)
	}
	if filepath.Dir(full) != parent {
		t.Errorf("parent %q is not the directory of %q", parent, full)
	}
}
