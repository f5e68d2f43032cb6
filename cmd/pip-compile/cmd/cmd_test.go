package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRootHelp(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--help"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("rootCmd failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "pip-compile") {
		t.Error("help output should contain 'pip-compile'")
	}
	if !strings.Contains(output, "--generate-hashes") {
		t.Error("help output should list --generate-hashes")
	}
	if !strings.Contains(output, "--allow-unsafe") {
		t.Error("help output should list --allow-unsafe")
	}
}

// runCompileCmd executes the compile command on a fresh cobra.Command so
// earlier flag parses don't leak in.
func runCompileCmd(t *testing.T, args ...string) error {
	t.Helper()
	cmd := &cobra.Command{
		Use:          "pip-compile",
		Args:         cobra.ArbitraryArgs,
		RunE:         runCompile,
		SilenceUsage: true,
	}
	addCompileFlags(cmd.Flags())
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestCompile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "requirements.in")
	content := "# comment\nzope.interface==5.4.0\nflask==2.0.1\nsetuptools==68.0.0\n"
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(tmpDir, "requirements.txt")

	err := runCompileCmd(t, "--no-header", "--no-emit-options", "--output-file", out, src)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	output := string(data)

	if !strings.Contains(output, "flask==2.0.1") {
		t.Errorf("output missing flask pin:\n%s", output)
	}
	if !strings.Contains(output, "zope.interface==5.4.0") {
		t.Errorf("output missing zope.interface pin:\n%s", output)
	}
	if strings.Index(output, "flask==") > strings.Index(output, "zope.interface==") {
		t.Error("pins not sorted by identity")
	}
	if !strings.Contains(output, "# via -r ") {
		t.Errorf("output missing source annotation:\n%s", output)
	}
	// setuptools is unsafe and must come out commented
	if !strings.Contains(output, "# setuptools") {
		t.Errorf("unsafe package not gated:\n%s", output)
	}
	if strings.Contains(output, "setuptools==68.0.0") {
		t.Errorf("unsafe package pinned without --allow-unsafe:\n%s", output)
	}
}

func TestCompileRejectsMalformedHashPin(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "requirements.in")
	if err := os.WriteFile(src, []byte("foo==1.0 --hash=banana\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(tmpDir, "requirements.txt")

	err := runCompileCmd(t, "--no-header", "--output-file", out, src)
	if err == nil {
		t.Fatal("compile succeeded with a malformed hash pin")
	}
	if !strings.Contains(err.Error(), "banana") {
		t.Errorf("error = %v, should name the bad pin", err)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		t.Error("output file written despite the malformed pin")
	}
}

func TestCompileNoIndexSuppressesIndexEmission(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "requirements.in")
	content := "--index-url https://private.example.com/simple\n--no-index\nfoo==1.0\n"
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(tmpDir, "requirements.txt")

	if err := runCompileCmd(t, "--no-header", "--output-file", out, src); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "--index-url") {
		t.Errorf("index emitted despite --no-index:\n%s", data)
	}
}

// A --hash on a duplicate line in a second input must survive the fan-in
// merge.
func TestCompileMergesDuplicateHashes(t *testing.T) {
	tmpDir := t.TempDir()
	hashA := "sha256:" + strings.Repeat("a", 64)
	hashB := "sha256:" + strings.Repeat("b", 64)
	srcA := filepath.Join(tmpDir, "a.in")
	if err := os.WriteFile(srcA, []byte("foo==1.0 --hash="+hashA+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	srcB := filepath.Join(tmpDir, "b.in")
	if err := os.WriteFile(srcB, []byte("foo==1.0 --hash="+hashB+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(tmpDir, "requirements.txt")

	if err := runCompileCmd(t, "--no-header", "--no-emit-options", "--output-file", out, srcA, srcB); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	output := string(data)
	if !strings.Contains(output, "--hash="+hashA) {
		t.Errorf("first input's hash missing:\n%s", output)
	}
	if !strings.Contains(output, "--hash="+hashB) {
		t.Errorf("second input's hash missing:\n%s", output)
	}
}
