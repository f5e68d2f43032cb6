// Package ingest turns requirements files into requirement records,
// repairing the relative-path defects left behind by line parsing:
// lost URL fragments and prematurely absolutized paths.
package ingest

import (
	"context"
	"errors"
	"net/url"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/jammie19/pip-tools/internal/req"
	"github.com/jammie19/pip-tools/internal/reqfile"
	"github.com/jammie19/pip-tools/internal/session"
)

var (
	fileURLSchemesRE = regexp.MustCompile(`^((git|hg|svn|bzr)\+)?file:`)
	// greedy from the first '#': a line with several #key=value segments
	// loses all of them on the retry
	fragmentStripRE = regexp.MustCompile(`#[^#]+=.+$`)
	driveLetterRE   = regexp.MustCompile(`^[a-zA-Z]:`)
)

// ParseRequirements reads a requirements file and returns one requirement
// record per line, including lines pulled in through nested -r/-c includes.
// Relative paths are anchored at fromDir when it is non-empty, rather than
// at the process working directory. The first line that fails construction
// twice aborts the sequence.
func ParseRequirements(ctx context.Context, filename string, sess *session.Session, opts *reqfile.Options, constraint bool, fromDir string) ([]*req.Requirement, error) {
	parser := &reqfile.Parser{Session: sess, Options: opts}
	parsed, err := parser.ParseFile(ctx, filename, constraint)
	if err != nil {
		return nil, err
	}

	reqs := make([]*req.Requirement, 0, len(parsed))
	for _, p := range parsed {
		r, err := construct(p, fromDir)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// construct builds one record from a parsed line and applies the repair
// steps: fragment-stripped retry, fragment recovery, absolutization, and
// relativity inference.
func construct(parsed reqfile.ParsedRequirement, fromDir string) (*req.Requirement, error) {
	var r *req.Requirement

	// Relative paths in the line resolve against fromDir, not against the
	// ambient working directory.
	err := inDir(fromDir, func() error {
		var err error
		r, err = req.FromParsed(parsed)
		var instErr *req.InstallationError
		if errors.As(err, &instErr) {
			// A relpath with a fragment fails construction; retry with
			// the fragment stripped.
			retry := parsed
			retry.Requirement = fragmentStripRE.ReplaceAllString(parsed.Requirement, "")
			r, err = req.FromParsed(retry)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	// Construction can silently drop the fragment even when it succeeds.
	// Recover it from the original text and reattach it.
	if req.FragmentString(r) == "" && r.Link != nil {
		if fragment := rawFragment(parsed.Requirement); fragment != "" {
			link := &req.Link{
				URL:            r.Link.URL,
				Scheme:         r.Link.Scheme,
				Path:           r.Link.Path,
				Fragment:       fragment,
				ComesFrom:      r.Link.ComesFrom,
				RequiresPython: r.Link.RequiresPython,
				YankedReason:   r.Link.YankedReason,
			}
			r = req.WithLink(r, link)
		}
	}

	r = req.Abs(r, fromDir)

	// Construction always yields an absolute path, so infer from the
	// original text whether it was relative and record that for the writer.
	barePath := fileURLSchemesRE.ReplaceAllString(parsed.Requirement, "")
	isWin := runtime.GOOS == "windows"
	if isWin {
		// file-URI formatting artifact
		barePath = strings.TrimLeft(barePath, "/")
	}
	if r.Link.IsFile() && !strings.HasPrefix(barePath, "/") {
		if !(isWin && driveLetterRE.MatchString(barePath)) {
			r.WasRelative = true
			r.RelPath = barePath
		}
	}

	return r, nil
}

// rawFragment parses the fragment straight out of the raw requirement text.
func rawFragment(text string) string {
	u, err := url.Parse(text)
	if err != nil {
		return ""
	}
	return u.Fragment
}

// inDir runs fn with the working directory set to dir, restoring the
// previous directory afterwards, including when fn fails. An empty dir
// runs fn in place.
func inDir(dir string, fn func() error) error {
	if dir == "" {
		return fn()
	}
	prev, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir(dir); err != nil {
		return err
	}
	defer func() { _ = os.Chdir(prev) }()
	return fn()
}
