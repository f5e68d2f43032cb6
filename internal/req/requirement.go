// Package req defines the requirement record shared by the requirements-file
// ingester and the pinned-output writer, along with the helpers that derive
// identities and canonical text from it.
package req

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Link is a resolved URL or path reference carried by a requirement.
type Link struct {
	// URL is the reference without its fragment.
	URL string
	// Scheme is the URL scheme, e.g. "file", "https", "git+https".
	Scheme string
	// Path is the local filesystem path for file-like schemes.
	Path string
	// Fragment is the part after '#', without the '#' itself.
	Fragment string

	ComesFrom      string
	RequiresPython string
	YankedReason   string
}

// IsFile reports whether the link points at the local filesystem,
// including VCS references like git+file.
func (l *Link) IsFile() bool {
	return l != nil && strings.HasSuffix(l.Scheme, "file")
}

// String returns the full reference including the fragment.
func (l *Link) String() string {
	if l == nil {
		return ""
	}
	if l.Fragment != "" {
		return l.URL + "#" + l.Fragment
	}
	return l.URL
}

// EggName extracts the name from an "egg=<name>" pair in the fragment.
func (l *Link) EggName() string {
	if l == nil {
		return ""
	}
	for _, pair := range strings.Split(l.Fragment, "&") {
		if v, ok := strings.CutPrefix(pair, "egg="); ok {
			return v
		}
	}
	return ""
}

// Origin records why a requirement is present: either raw provenance text
// from a requirements file (e.g. "-r reqs.in (line 3)" or "proj (setup.py)"),
// or a back-reference to the requirement that pulled this one in.
type Origin struct {
	Text   string
	Parent *Requirement
}

// Requirement is one parsed dependency specification.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier string
	Marker    string
	Editable  bool
	// Constraint marks requirements that came from a -c constraints file.
	Constraint bool
	ComesFrom  *Origin
	Link       *Link
	// Hashes holds per-line --hash=algo:digest options.
	Hashes []string

	// WasRelative records that the original text referenced the path
	// relative to the requirements file's directory, so the writer can
	// re-emit the relative form. Only meaningful for file-like links.
	WasRelative bool
	// RelPath is the original relative path text, valid when WasRelative.
	RelPath string

	// SourceReqs holds the top-level requirements this pin satisfies when
	// several inputs collapse onto one record.
	SourceReqs []*Requirement
}

// InstallationError reports a requirement line that could not be turned
// into a requirement record.
type InstallationError struct {
	Requirement string
	Reason      string
}

func (e *InstallationError) Error() string {
	return fmt.Sprintf("invalid requirement %q: %s", e.Requirement, e.Reason)
}

var normalizeRE = regexp.MustCompile(`[-_.]+`)

// NormalizeName canonicalizes a package name: lowercase, with runs of
// '-', '_' and '.' collapsed to a single '-'.
func NormalizeName(name string) string {
	return normalizeRE.ReplaceAllString(strings.ToLower(name), "-")
}

// Key returns the stable identity of a requirement: the normalized name,
// or the link reference for records with no resolvable name yet.
func Key(r *Requirement) string {
	if r.Name == "" {
		return r.Link.String()
	}
	return NormalizeName(r.Name)
}

// FragmentString returns the fragment carried by the requirement's link,
// or "" when there is none.
func FragmentString(r *Requirement) string {
	if r.Link == nil {
		return ""
	}
	return r.Link.Fragment
}

// String renders the canonical text form of the requirement, the way it
// appears in a pinned requirements file.
func (r *Requirement) String() string {
	if r.Link != nil {
		ref := r.Link.String()
		if r.WasRelative && r.RelPath != "" {
			ref = r.RelPath
		}
		if r.Editable {
			return "-e " + ref
		}
		return ref
	}
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		extras := append([]string(nil), r.Extras...)
		sort.Strings(extras)
		b.WriteString("[" + strings.Join(extras, ",") + "]")
	}
	b.WriteString(r.Specifier)
	return strings.ToLower(b.String())
}

// Format renders a requirement line with its marker and hashes attached.
// Hashes are sorted and emitted as backslash-continued --hash options.
func Format(r *Requirement, marker string, hashes []string) string {
	line := r.String()
	if marker != "" {
		line = fmt.Sprintf("%s ; %s", line, marker)
	}
	if len(hashes) > 0 {
		sorted := append([]string(nil), hashes...)
		sort.Strings(sorted)
		for _, h := range sorted {
			line += " \\\n    --hash=" + h
		}
	}
	return line
}

// Dedup removes duplicates from items, preserving first-seen order.
func Dedup(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
