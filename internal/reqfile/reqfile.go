// Package reqfile parses pip requirements files line by line, expanding
// nested -r/-c includes and collecting per-line and global options.
package reqfile

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jammie19/pip-tools/internal/session"
)

// ParsedRequirement is one raw requirement line, before record construction.
type ParsedRequirement struct {
	// Requirement is the requirement text with options stripped.
	Requirement string
	IsEditable  bool
	// Constraint marks lines that came from a -c constraints file.
	Constraint bool
	// ComesFrom is the provenance string, e.g. "-r requirements.in (line 3)".
	ComesFrom string
	Options   LineOptions
	// LineSource describes the source line, e.g. "line 3 of requirements.in".
	LineSource string
}

// LineOptions are the per-requirement options recognized on a line.
type LineOptions struct {
	Hashes []string
}

// Options collects the global option lines found while parsing.
type Options struct {
	IndexURL       string
	ExtraIndexURLs []string
	NoIndex        bool
	FindLinks      []string
	TrustedHosts   []string
	NoBinary       []string
	OnlyBinary     []string
	Pre            bool
}

// Parser reads requirements files. Session is used for http(s) includes and
// may be nil when all inputs are local. Options, when non-nil, accumulates
// global option lines across all parsed files.
type Parser struct {
	Session *session.Session
	Options *Options
}

// trailing comments must be preceded by whitespace; a leading '#' comments
// out the whole line.
var commentRE = regexp.MustCompile(`(^|\s+)#.*$`)

// ParseFile reads filename (a local path or an http(s) URL) and returns one
// ParsedRequirement per requirement line, in file order, with nested
// -r/-c includes expanded in place.
func (p *Parser) ParseFile(ctx context.Context, filename string, constraint bool) ([]ParsedRequirement, error) {
	content, err := p.readFile(ctx, filename)
	if err != nil {
		return nil, err
	}

	var reqs []ParsedRequirement
	for _, line := range joinLines(strings.Split(content, "\n")) {
		text := strings.TrimSpace(commentRE.ReplaceAllString(line.text, ""))
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "-") {
			nested, err := p.parseOptionLine(ctx, filename, line.num, text, constraint)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, nested...)
			continue
		}

		reqText, opts, err := breakArgsOptions(text)
		if err != nil {
			return nil, fmt.Errorf("%s, line %d: %w", filename, line.num, err)
		}
		flag := "-r"
		if constraint {
			flag = "-c"
		}
		reqs = append(reqs, ParsedRequirement{
			Requirement: reqText,
			Constraint:  constraint,
			ComesFrom:   fmt.Sprintf("%s %s (line %d)", flag, filename, line.num),
			Options:     opts,
			LineSource:  fmt.Sprintf("line %d of %s", line.num, filename),
		})
	}
	return reqs, nil
}

type logicalLine struct {
	text string
	num  int
}

// joinLines folds backslash-continued lines into single logical lines,
// keeping the line number of the first physical line.
func joinLines(lines []string) []logicalLine {
	var out []logicalLine
	var pending string
	pendingNum := 0
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if cont, ok := strings.CutSuffix(line, "\\"); ok {
			if pending == "" {
				pendingNum = i + 1
			}
			pending += cont
			continue
		}
		if pending != "" {
			out = append(out, logicalLine{text: pending + line, num: pendingNum})
			pending = ""
			continue
		}
		out = append(out, logicalLine{text: line, num: i + 1})
	}
	if pending != "" {
		out = append(out, logicalLine{text: pending, num: pendingNum})
	}
	return out
}

// breakArgsOptions splits a requirement line into the requirement text and
// its trailing options: every token up to the first one starting with "-"
// belongs to the requirement.
func breakArgsOptions(text string) (string, LineOptions, error) {
	tokens := strings.Split(text, " ")
	var args []string
	var opts LineOptions
	i := 0
	for ; i < len(tokens); i++ {
		if strings.HasPrefix(tokens[i], "-") {
			break
		}
		args = append(args, tokens[i])
	}
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "" {
			continue
		}
		switch {
		case strings.HasPrefix(tok, "--hash="):
			opts.Hashes = append(opts.Hashes, strings.TrimPrefix(tok, "--hash="))
		case tok == "--hash":
			if i+1 >= len(tokens) {
				return "", opts, fmt.Errorf("--hash requires a value")
			}
			i++
			opts.Hashes = append(opts.Hashes, tokens[i])
		default:
			return "", opts, fmt.Errorf("unsupported requirement option %q", tok)
		}
	}
	return strings.TrimSpace(strings.Join(args, " ")), opts, nil
}

// parseOptionLine handles lines starting with "-": include directives,
// editable requirements, and global options.
func (p *Parser) parseOptionLine(ctx context.Context, filename string, lineNum int, text string, constraint bool) ([]ParsedRequirement, error) {
	opt, value := splitOption(text)

	switch opt {
	case "-r", "--requirement":
		return p.parseInclude(ctx, filename, lineNum, opt, value, constraint)
	case "-c", "--constraint":
		return p.parseInclude(ctx, filename, lineNum, opt, value, true)
	case "-e", "--editable":
		if value == "" {
			return nil, fmt.Errorf("%s, line %d: %s requires a value", filename, lineNum, opt)
		}
		reqText, opts, err := breakArgsOptions(value)
		if err != nil {
			return nil, fmt.Errorf("%s, line %d: %w", filename, lineNum, err)
		}
		flag := "-r"
		if constraint {
			flag = "-c"
		}
		return []ParsedRequirement{{
			Requirement: reqText,
			IsEditable:  true,
			Constraint:  constraint,
			ComesFrom:   fmt.Sprintf("%s %s (line %d)", flag, filename, lineNum),
			Options:     opts,
			LineSource:  fmt.Sprintf("line %d of %s", lineNum, filename),
		}}, nil
	}

	if p.Options == nil {
		return nil, nil
	}
	switch opt {
	case "-i", "--index-url":
		p.Options.IndexURL = value
	case "--extra-index-url":
		p.Options.ExtraIndexURLs = append(p.Options.ExtraIndexURLs, value)
	case "--no-index":
		p.Options.NoIndex = true
	case "-f", "--find-links":
		p.Options.FindLinks = append(p.Options.FindLinks, value)
	case "--trusted-host":
		p.Options.TrustedHosts = append(p.Options.TrustedHosts, value)
	case "--no-binary":
		p.Options.NoBinary = append(p.Options.NoBinary, value)
	case "--only-binary":
		p.Options.OnlyBinary = append(p.Options.OnlyBinary, value)
	case "--pre":
		p.Options.Pre = true
	default:
		return nil, fmt.Errorf("%s, line %d: unsupported option %q", filename, lineNum, opt)
	}
	return nil, nil
}

// parseInclude recursively parses a -r/-c include, resolving relative
// paths against the including file.
func (p *Parser) parseInclude(ctx context.Context, filename string, lineNum int, opt, value string, constraint bool) ([]ParsedRequirement, error) {
	if value == "" {
		return nil, fmt.Errorf("%s, line %d: %s requires a value", filename, lineNum, opt)
	}
	target := resolveInclude(filename, value)
	reqs, err := p.ParseFile(ctx, target, constraint)
	if err != nil {
		return nil, fmt.Errorf("%s, line %d: %w", filename, lineNum, err)
	}
	return reqs, nil
}

// splitOption separates "-r value", "--requirement value" and
// "--requirement=value" into option and value.
func splitOption(text string) (string, string) {
	if opt, value, ok := strings.Cut(text, "="); ok && strings.HasPrefix(opt, "--") && !strings.Contains(opt, " ") {
		return opt, strings.TrimSpace(value)
	}
	opt, value, _ := strings.Cut(text, " ")
	return opt, strings.TrimSpace(value)
}

// resolveInclude resolves an included file against the file including it.
// URL bases keep URL semantics; local bases keep filesystem semantics.
func resolveInclude(base, include string) string {
	if isRemote(include) {
		return include
	}
	if isRemote(base) {
		u, err := url.Parse(base)
		if err != nil {
			return include
		}
		u.Path = path.Join(path.Dir(u.Path), include)
		return u.String()
	}
	if filepath.IsAbs(include) {
		return include
	}
	return filepath.Join(filepath.Dir(base), include)
}

func isRemote(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}

func (p *Parser) readFile(ctx context.Context, filename string) (string, error) {
	if isRemote(filename) {
		if p.Session == nil {
			return "", fmt.Errorf("cannot fetch %s: no session configured", filename)
		}
		data, err := p.Session.Get(ctx, filename)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", filename, err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("reading requirements file: %w", err)
	}
	return string(data), nil
}
