// Package writer renders a resolved requirement set as a pinned
// requirements file: deterministic ordering, provenance annotations,
// optional hashes, and gated handling of unsafe packages.
package writer

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jammie19/pip-tools/internal/req"
)

// DefaultIndexURL is suppressed from the flags block when it is the first
// configured index.
const DefaultIndexURL = "https://pypi.org/simple"

// DefaultUnsafePackages are the identities that must not be pinned
// directly: pinning them can conflict with pip's own bootstrap.
var DefaultUnsafePackages = map[string]bool{
	"distribute": true,
	"pip":        true,
	"setuptools": true,
}

var (
	msgUnhashedPackage = comment(
		"# WARNING: pip install will require the following package to be hashed." +
			"\n# Consider using a hashable URL like " +
			"https://github.com/jazzband/pip-tools/archive/SOMECOMMIT.zip")

	msgUnsafePackagesUnpinned = comment(
		"# WARNING: The following packages were not pinned, but pip requires them to be" +
			"\n# pinned when the requirements file includes hashes. " +
			"Consider using the --allow-unsafe flag.")

	msgUnsafePackages = comment(
		"# The following packages are considered to be unsafe in a requirements file:")
)

// MessageUninstallable is logged when the produced file would be rejected
// by pip install --require-hashes.
const MessageUninstallable = "The generated requirements file may be rejected by pip install. " +
	"See # WARNING lines for details."

// FormatControl carries pip's binary build-control directives.
type FormatControl struct {
	NoBinary   []string
	OnlyBinary []string
}

// Writer writes a pinned requirements file. Configuration is immutable
// after construction; concurrent Write calls against the same destination
// must be serialized by the caller.
type Writer struct {
	Dst    io.Writer
	Logger *log.Logger

	DryRun          bool
	EmitHeader      bool
	EmitIndexURL    bool
	EmitTrustedHost bool
	Annotate        bool
	StripExtras     bool
	GenerateHashes  bool
	DefaultIndex    string
	IndexURLs       []string
	TrustedHosts    []string
	FormatControl   FormatControl
	AllowUnsafe     bool
	FindLinks       []string
	EmitFindLinks   bool
	EmitOptions     bool

	// FromDir anchors provenance paths in "# via" annotations: file
	// origins render relative to it when a relative path exists.
	FromDir string

	// CompileCommand is embedded in the header; the CUSTOM_COMPILE_COMMAND
	// environment variable overrides it.
	CompileCommand string
	// PythonVersion is the interpreter's major.minor version for the header.
	PythonVersion string
	// UnsafePackages overrides DefaultUnsafePackages when non-nil.
	UnsafePackages map[string]bool
}

func (w *Writer) logger() *log.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return log.Default()
}

func (w *Writer) unsafeSet() map[string]bool {
	if w.UnsafePackages != nil {
		return w.UnsafePackages
	}
	return DefaultUnsafePackages
}

// sortReqs orders requirements non-editable-first, then by identity.
func sortReqs(reqs []*req.Requirement) []*req.Requirement {
	sorted := append([]*req.Requirement(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Editable != sorted[j].Editable {
			return !sorted[i].Editable
		}
		return req.Key(sorted[i]) < req.Key(sorted[j])
	})
	return sorted
}

func (w *Writer) writeHeader() []string {
	if !w.EmitHeader {
		return nil
	}
	version := w.PythonVersion
	if version == "" {
		version = "3"
	}
	compileCommand := os.Getenv("CUSTOM_COMPILE_COMMAND")
	if compileCommand == "" {
		compileCommand = w.CompileCommand
	}
	return []string{
		comment("#"),
		comment("# This file is autogenerated by pip-compile with python " + version),
		comment("# To update, run:"),
		comment("#"),
		comment("#    " + compileCommand),
		comment("#"),
	}
}

func (w *Writer) writeIndexOptions() []string {
	if !w.EmitIndexURL {
		return nil
	}
	var lines []string
	for i, indexURL := range req.Dedup(w.IndexURLs) {
		if i == 0 && strings.TrimRight(indexURL, "/") == w.DefaultIndex {
			continue
		}
		flag := "--extra-index-url"
		if i == 0 {
			flag = "--index-url"
		}
		lines = append(lines, fmt.Sprintf("%s %s", flag, indexURL))
	}
	return lines
}

func (w *Writer) writeFindLinks() []string {
	if !w.EmitFindLinks {
		return nil
	}
	var lines []string
	for _, findLink := range req.Dedup(w.FindLinks) {
		lines = append(lines, "--find-links "+findLink)
	}
	return lines
}

func (w *Writer) writeTrustedHosts() []string {
	if !w.EmitTrustedHost {
		return nil
	}
	var lines []string
	for _, trustedHost := range req.Dedup(w.TrustedHosts) {
		lines = append(lines, "--trusted-host "+trustedHost)
	}
	return lines
}

// writeFormatControls is the only flag category that sorts: several
// directives would otherwise come out in unstable order.
func (w *Writer) writeFormatControls() []string {
	var lines []string
	noBinary := append([]string(nil), w.FormatControl.NoBinary...)
	sort.Strings(noBinary)
	for _, nb := range req.Dedup(noBinary) {
		lines = append(lines, "--no-binary "+nb)
	}
	onlyBinary := append([]string(nil), w.FormatControl.OnlyBinary...)
	sort.Strings(onlyBinary)
	for _, ob := range req.Dedup(onlyBinary) {
		lines = append(lines, "--only-binary "+ob)
	}
	return lines
}

func (w *Writer) writeFlags() []string {
	if !w.EmitOptions {
		return nil
	}
	var lines []string
	lines = append(lines, w.writeIndexOptions()...)
	lines = append(lines, w.writeFindLinks()...)
	lines = append(lines, w.writeTrustedHosts()...)
	lines = append(lines, w.writeFormatControls()...)
	if len(lines) > 0 {
		lines = append(lines, "")
	}
	return lines
}

// iterLines produces the full ordered output. The second return value
// reports whether the file would be rejected by a strict hash-enforcing
// install.
func (w *Writer) iterLines(results, unsafeReqs []*req.Requirement, markers map[string]string, hashes map[*req.Requirement][]string) ([]string, bool) {
	warnUninstallable := false
	hasHashes := false
	for _, hs := range hashes {
		if len(hs) > 0 {
			hasHashes = true
			break
		}
	}

	var lines []string
	yielded := false

	for _, line := range w.writeHeader() {
		lines = append(lines, line)
		yielded = true
	}
	for _, line := range w.writeFlags() {
		lines = append(lines, line)
		yielded = true
	}

	unsafeNames := w.unsafeSet()
	if len(unsafeReqs) == 0 {
		for _, r := range results {
			if unsafeNames[req.Key(r)] {
				unsafeReqs = append(unsafeReqs, r)
			}
		}
	}
	var packages []*req.Requirement
	for _, r := range results {
		if !unsafeNames[req.Key(r)] {
			packages = append(packages, r)
		}
	}

	if len(packages) > 0 {
		for _, r := range sortReqs(packages) {
			if hasHashes && len(hashes[r]) == 0 {
				lines = append(lines, msgUnhashedPackage)
				warnUninstallable = true
			}
			lines = append(lines, w.formatRequirement(r, markers[req.Key(r)], hashes))
		}
		yielded = true
	}

	if len(unsafeReqs) > 0 {
		lines = append(lines, "")
		yielded = true
		if hasHashes && !w.AllowUnsafe {
			lines = append(lines, msgUnsafePackagesUnpinned)
			warnUninstallable = true
		} else {
			lines = append(lines, msgUnsafePackages)
		}

		for _, r := range sortReqs(unsafeReqs) {
			key := req.Key(r)
			if !w.AllowUnsafe {
				lines = append(lines, comment("# "+key))
			} else {
				lines = append(lines, w.formatRequirement(r, markers[key], hashes))
			}
		}
	}

	// Yield even when there's no real content, so that blank files are
	// written.
	if !yielded {
		lines = append(lines, "")
	}

	return lines, warnUninstallable
}

// Write renders the resolved set and writes it to Dst line by line unless
// DryRun is set. Every line is also logged; the aggregated uninstallable
// warning, when triggered, is logged after all lines are produced.
func (w *Writer) Write(results, unsafeReqs []*req.Requirement, markers map[string]string, hashes map[*req.Requirement][]string) error {
	lines, warnUninstallable := w.iterLines(results, unsafeReqs, markers, hashes)
	for _, line := range lines {
		w.logger().Info(line)
		if !w.DryRun {
			if _, err := io.WriteString(w.Dst, unstyle(line)+lineSeparator()); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
	}
	if warnUninstallable {
		w.logger().Warn(MessageUninstallable)
	}
	return nil
}

var extrasRE = regexp.MustCompile(`\[.+?\]`)

func (w *Writer) formatRequirement(r *req.Requirement, marker string, hashes map[*req.Requirement][]string) string {
	line := req.Format(r, marker, hashes[r])
	if w.StripExtras {
		line = extrasRE.ReplaceAllString(line, "")
	}

	if !w.Annotate {
		return line
	}

	// Annotate what packages or reqs-ins this package is required by.
	requiredBy := make(map[string]bool)
	if len(r.SourceReqs) > 0 {
		for _, src := range r.SourceReqs {
			if src.ComesFrom != nil {
				requiredBy[comesFromAsString(src, w.FromDir)] = true
			}
		}
	} else if r.ComesFrom != nil {
		requiredBy[comesFromAsString(r, w.FromDir)] = true
	}

	if len(requiredBy) > 0 {
		sources := make([]string, 0, len(requiredBy))
		for source := range requiredBy {
			sources = append(sources, source)
		}
		sort.Strings(sources)

		var annotation string
		if len(sources) == 1 {
			annotation = "    # via " + sources[0]
		} else {
			annotationLines := []string{"    # via"}
			for _, source := range sources {
				annotationLines = append(annotationLines, "    #   "+source)
			}
			annotation = strings.Join(annotationLines, "\n")
		}
		line = line + "\n" + comment(annotation)
	}

	return line
}

func lineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}
