package req

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/jammie19/pip-tools/internal/reqfile"
)

var vcsSchemeRE = regexp.MustCompile(`^(git|hg|svn|bzr)\+`)

// FromParsed builds a requirement record from one parsed requirements-file
// line. Relative paths are resolved against the process working directory,
// so callers that need a different anchor must scope the working directory
// around the call.
func FromParsed(parsed reqfile.ParsedRequirement) (*Requirement, error) {
	text := strings.TrimSpace(parsed.Requirement)
	r := &Requirement{
		Editable:   parsed.IsEditable,
		Constraint: parsed.Constraint,
		Hashes:     parsed.Options.Hashes,
	}
	if parsed.ComesFrom != "" {
		r.ComesFrom = &Origin{Text: parsed.ComesFrom}
	}

	// "name @ url" direct references
	if name, ref, ok := strings.Cut(text, " @ "); ok && isURL(ref) {
		link, err := parseLink(strings.TrimSpace(ref))
		if err != nil {
			return nil, &InstallationError{Requirement: text, Reason: err.Error()}
		}
		r.Name = strings.TrimSpace(name)
		r.Link = link
		return r, nil
	}

	switch {
	case isURL(text):
		link, err := parseLink(text)
		if err != nil {
			return nil, &InstallationError{Requirement: text, Reason: err.Error()}
		}
		r.Link = link
		r.Name = nameFromLink(link)

	case looksLikePath(text):
		base, fragment := splitFragment(text)
		if fragment != "" && !filepath.IsAbs(base) {
			return nil, &InstallationError{
				Requirement: text,
				Reason:      "relative path with a URL fragment",
			}
		}
		link, err := fileLink("file", expandUser(base), fragment)
		if err != nil {
			return nil, &InstallationError{Requirement: text, Reason: err.Error()}
		}
		r.Link = link
		r.Name = nameFromLink(link)

	default:
		name, extras, specifier, marker, err := parseNamed(text)
		if err != nil {
			return nil, &InstallationError{Requirement: text, Reason: err.Error()}
		}
		r.Name = name
		r.Extras = extras
		r.Specifier = specifier
		r.Marker = marker
	}

	return r, nil
}

// WithLink returns a copy of r carrying link in place of its original link.
func WithLink(r *Requirement, link *Link) *Requirement {
	out := *r
	out.Link = link
	if out.Name == "" {
		out.Name = link.EggName()
	}
	return &out
}

// Abs returns r with its file-backed link anchored at dir, or at the
// ambient working directory when dir is empty. Non-file requirements are
// returned unchanged.
func Abs(r *Requirement, dir string) *Requirement {
	if !r.Link.IsFile() || r.Link.Path == "" {
		return r
	}
	p := r.Link.Path
	if !filepath.IsAbs(p) {
		if dir != "" {
			p = filepath.Join(dir, p)
		} else if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	p = filepath.Clean(p)
	if p == r.Link.Path {
		return r
	}
	link := *r.Link
	link.Path = p
	link.URL = link.Scheme + "://" + filepath.ToSlash(p)
	return WithLink(r, &link)
}

func isURL(text string) bool {
	return strings.Contains(text, "://") ||
		vcsSchemeRE.MatchString(text) ||
		strings.HasPrefix(text, "file:")
}

func looksLikePath(text string) bool {
	if strings.HasPrefix(text, ".") || strings.HasPrefix(text, "~") {
		return true
	}
	if filepath.IsAbs(text) {
		return true
	}
	if strings.ContainsRune(text, filepath.Separator) {
		return true
	}
	return runtime.GOOS == "windows" && strings.ContainsRune(text, '/')
}

func splitFragment(text string) (string, string) {
	if base, fragment, ok := strings.Cut(text, "#"); ok {
		return base, fragment
	}
	return text, ""
}

// parseLink parses a URL-form reference into a Link, resolving file paths
// to absolute form.
func parseLink(text string) (*Link, error) {
	base, fragment := splitFragment(text)
	i := strings.Index(base, ":")
	if i <= 0 {
		return nil, fmt.Errorf("missing URL scheme in %q", text)
	}
	scheme := strings.ToLower(base[:i])

	if strings.HasSuffix(scheme, "file") {
		rest := strings.TrimPrefix(base[i+1:], "//")
		return fileLink(scheme, rest, fragment)
	}
	return &Link{URL: base, Scheme: scheme, Fragment: fragment}, nil
}

// fileLink builds a file-like link with an absolute path. Relative paths
// resolve against the process working directory.
func fileLink(scheme, p, fragment string) (*Link, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		var err error
		abs, err = filepath.Abs(abs)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", p, err)
		}
	}
	abs = filepath.Clean(abs)
	return &Link{
		URL:      scheme + "://" + filepath.ToSlash(abs),
		Scheme:   scheme,
		Path:     abs,
		Fragment: fragment,
	}, nil
}

func expandUser(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// nameFromLink recovers a project name from an egg fragment or from an
// archive filename; unnamed directory references keep an empty name and
// fall back to the link as their identity.
func nameFromLink(l *Link) string {
	if name := l.EggName(); name != "" {
		return name
	}
	filename := path.Base(strings.TrimSuffix(filepath.ToSlash(l.URL), "/"))
	return nameFromFilename(filename)
}

var archiveExts = []string{".whl", ".tar.gz", ".tgz", ".tar.bz2", ".zip"}

// nameFromFilename extracts the project name from an sdist or wheel
// filename like "pkg-1.2.3.tar.gz". The version part starts at the first
// dash-separated segment beginning with a digit.
func nameFromFilename(filename string) string {
	for _, ext := range archiveExts {
		stem, ok := strings.CutSuffix(filename, ext)
		if !ok {
			continue
		}
		segments := strings.Split(stem, "-")
		name := segments
		for i, seg := range segments {
			if seg != "" && seg[0] >= '0' && seg[0] <= '9' {
				name = segments[:i]
				break
			}
		}
		return strings.Join(name, "-")
	}
	return ""
}

var nameStartRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// parseNamed parses a PEP 508-style requirement: name, optional extras,
// optional version specifier, optional ";"-separated marker.
func parseNamed(text string) (name string, extras []string, specifier, marker string, err error) {
	reqPart := text
	if before, after, ok := strings.Cut(text, ";"); ok {
		reqPart = strings.TrimSpace(before)
		marker = strings.TrimSpace(after)
	}

	loc := nameStartRE.FindStringIndex(reqPart)
	if loc == nil {
		return "", nil, "", "", fmt.Errorf("no valid project name")
	}
	name = reqPart[:loc[1]]
	rest := strings.TrimSpace(reqPart[loc[1]:])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", nil, "", "", fmt.Errorf("unterminated extras")
		}
		for _, extra := range strings.Split(rest[1:end], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				extras = append(extras, extra)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if rest != "" && !strings.ContainsAny(rest[:1], "=<>!~(") {
		return "", nil, "", "", fmt.Errorf("invalid specifier %q", rest)
	}
	specifier = rest
	return name, extras, specifier, marker, nil
}
