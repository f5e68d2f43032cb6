package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jammie19/pip-tools/internal/req"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// A relative path with an egg fragment must come out with the fragment
// restored and the relativity flag set.
func TestFragmentRepairRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	subDir := filepath.Join(tmpDir, "sub")
	if err := os.Mkdir(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, subDir, "requirements.in", "../pkg#egg=name\n")

	reqs, err := ParseRequirements(context.Background(), path, nil, nil, false, subDir)
	if err != nil {
		t.Fatalf("ParseRequirements() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("got %d requirements, want 1", len(reqs))
	}

	r := reqs[0]
	if req.FragmentString(r) != "egg=name" {
		t.Errorf("fragment = %q, want %q", req.FragmentString(r), "egg=name")
	}
	if !r.WasRelative {
		t.Error("WasRelative = false, want true")
	}
	if r.Name != "name" {
		t.Errorf("Name = %q, want %q", r.Name, "name")
	}
	wantPath := filepath.Join(tmpDir, "pkg")
	if r.Link.Path != wantPath {
		t.Errorf("Path = %q, want %q", r.Link.Path, wantPath)
	}
}

func TestRelativityInference(t *testing.T) {
	tmpDir := t.TempDir()
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"relative dir", "./pkg", true},
		{"relative parent", "../pkg", true},
		{"relative file URL", "file:pkg", true},
		{"absolute path", tmpDir + "/pkg", false},
		{"absolute file URL", "file://" + tmpDir + "/pkg", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "requirements.in", tt.line+"\n")
			reqs, err := ParseRequirements(context.Background(), path, nil, nil, false, filepath.Dir(path))
			if err != nil {
				t.Fatalf("ParseRequirements() error = %v", err)
			}
			if reqs[0].WasRelative != tt.want {
				t.Errorf("WasRelative = %v, want %v", reqs[0].WasRelative, tt.want)
			}
		})
	}
}

func TestNetworkURLNeverRelative(t *testing.T) {
	path := writeFile(t, t.TempDir(), "requirements.in",
		"https://files.example.com/some-pkg-1.0.tar.gz\n")
	reqs, err := ParseRequirements(context.Background(), path, nil, nil, false, filepath.Dir(path))
	if err != nil {
		t.Fatalf("ParseRequirements() error = %v", err)
	}
	if reqs[0].WasRelative {
		t.Error("WasRelative = true for a network URL")
	}
}

func TestAnchoredAtFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "requirements.in", "./pkg\n")

	reqs, err := ParseRequirements(context.Background(), path, nil, nil, false, tmpDir)
	if err != nil {
		t.Fatalf("ParseRequirements() error = %v", err)
	}
	wantPath := filepath.Join(tmpDir, "pkg")
	if reqs[0].Link.Path != wantPath {
		t.Errorf("Path = %q, want %q", reqs[0].Link.Path, wantPath)
	}
}

// Both construction attempts failing must propagate the installation
// error and abort the sequence.
func TestDoubleFailurePropagates(t *testing.T) {
	tmpDir := t.TempDir()
	// the fragment has no '=', so the stripping retry changes nothing
	path := writeFile(t, tmpDir, "requirements.in", "../pkg#egg\n")

	_, err := ParseRequirements(context.Background(), path, nil, nil, false, tmpDir)
	var instErr *req.InstallationError
	if !errors.As(err, &instErr) {
		t.Fatalf("ParseRequirements() error = %v, want InstallationError", err)
	}
}

func TestWorkingDirRestoredOnFailure(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "requirements.in", "../pkg#egg\n")

	before, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseRequirements(context.Background(), path, nil, nil, false, tmpDir); err == nil {
		t.Fatal("ParseRequirements() error = nil, want failure")
	}
	after, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Errorf("working directory changed: %q -> %q", before, after)
	}
}

// The strip is greedy from the first '#': multiple key=value fragments
// all go away on the retry.
func TestFragmentStripIsGreedy(t *testing.T) {
	got := fragmentStripRE.ReplaceAllString("../pkg#egg=name#subdirectory=src", "")
	if got != "../pkg" {
		t.Errorf("stripped = %q, want %q", got, "../pkg")
	}
}

func TestFileURLSchemeStripping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"git+file:../pkg", "../pkg"},
		{"file:../pkg", "../pkg"},
		{"hg+file:/abs/pkg", "/abs/pkg"},
		{"https://example.com/x", "https://example.com/x"},
	}
	for _, tt := range tests {
		if got := fileURLSchemesRE.ReplaceAllString(tt.in, ""); got != tt.want {
			t.Errorf("strip(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
