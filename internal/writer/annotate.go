package writer

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/jammie19/pip-tools/internal/req"
)

// The two recognized provenance shapes. Anything else passes through
// verbatim.
var (
	comesFromLineRE = regexp.MustCompile(
		`^(?P<opts>-[rc]) (?P<path>.+)(?P<line_num> \(line \d+\))$`)

	comesFromProjectRE = regexp.MustCompile(
		`^(?P<name>.+) \((?P<path>.+(/|\\)(?P<filename>setup\.(py|cfg)|pyproject\.toml))\)$`)
)

// comesFromAsString renders a requirement's provenance for a "# via"
// annotation. File provenance is rewritten relative to fromDir when that
// is possible; requirements pulled in by another requirement render as the
// parent's identity.
func comesFromAsString(r *req.Requirement, fromDir string) string {
	if r.ComesFrom == nil {
		return ""
	}
	if r.ComesFrom.Parent != nil {
		return req.Key(r.ComesFrom.Parent)
	}

	if m := comesFromLineRE.FindStringSubmatch(r.ComesFrom.Text); m != nil {
		opts, path := m[1], m[2]
		if fromDir != "" {
			if rel, err := filepath.Rel(fromDir, path); err == nil {
				return fmt.Sprintf("%s %s", opts, rel)
			}
			// impossible to construct the relative path
		}
		return fmt.Sprintf("%s %s", opts, path)
	}

	if m := comesFromProjectRE.FindStringSubmatch(r.ComesFrom.Text); m != nil {
		name, path := m[1], m[2]
		if fromDir != "" {
			if rel, err := filepath.Rel(fromDir, path); err == nil {
				return fmt.Sprintf("%s (%s)", name, rel)
			}
		}
		return fmt.Sprintf("%s (%s)", name, path)
	}

	return r.ComesFrom.Text
}
