package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jammie19/pip-tools/internal/config"
	"github.com/jammie19/pip-tools/internal/hash"
	"github.com/jammie19/pip-tools/internal/ingest"
	"github.com/jammie19/pip-tools/internal/req"
	"github.com/jammie19/pip-tools/internal/reqfile"
	"github.com/jammie19/pip-tools/internal/session"
	"github.com/jammie19/pip-tools/internal/writer"
)

const defaultSrcFile = "requirements.in"

var (
	outputFile     string
	dryRun         bool
	allowUnsafe    bool
	generateHashes bool
	stripExtras    bool
	noHeader       bool
	noAnnotate     bool
	noEmitIndexURL bool
	noEmitTrusted  bool
	noEmitFindLink bool
	noEmitOptions  bool

	indexURL       string
	extraIndexURLs []string
	findLinks      []string
	trustedHosts   []string
	noBinary       []string
	onlyBinary     []string
	unsafePackages []string
)

func init() {
	addCompileFlags(rootCmd.Flags())
}

func addCompileFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&outputFile, "output-file", "o", "requirements.txt", "output file; use - for stdout")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "only show what would happen, don't change the output file")
	flags.BoolVar(&allowUnsafe, "allow-unsafe", false, "pin packages considered unsafe")
	flags.BoolVar(&generateHashes, "generate-hashes", false, "generate pip 8 style hashes in the resulting file")
	flags.BoolVar(&stripExtras, "strip-extras", false, "strip extras from the output file")
	flags.BoolVar(&noHeader, "no-header", false, "omit the comment banner at the top of the output file")
	flags.BoolVar(&noAnnotate, "no-annotate", false, "omit the \"via\" source annotations")
	flags.BoolVar(&noEmitIndexURL, "no-emit-index-url", false, "omit --index-url/--extra-index-url lines")
	flags.BoolVar(&noEmitTrusted, "no-emit-trusted-host", false, "omit --trusted-host lines")
	flags.BoolVar(&noEmitFindLink, "no-emit-find-links", false, "omit --find-links lines")
	flags.BoolVar(&noEmitOptions, "no-emit-options", false, "omit all option lines")
	flags.StringVarP(&indexURL, "index-url", "i", "", "base URL of the package index")
	flags.StringSliceVar(&extraIndexURLs, "extra-index-url", nil, "additional package index URLs")
	flags.StringSliceVarP(&findLinks, "find-links", "f", nil, "look for archives in this directory or at this URL")
	flags.StringSliceVar(&trustedHosts, "trusted-host", nil, "trust this host even without valid TLS")
	flags.StringSliceVar(&noBinary, "no-binary", nil, "do not use binary packages for these names")
	flags.StringSliceVar(&onlyBinary, "only-binary", nil, "only use binary packages for these names")
	flags.StringSliceVar(&unsafePackages, "unsafe-package", nil, "override the built-in unsafe package set")
}

func runCompile(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := config.LoadDir(".")
	if err != nil {
		return err
	}
	applyConfig(cmd, cfg)

	srcFiles := args
	if len(srcFiles) == 0 {
		srcFiles = []string{defaultSrcFile}
	}

	sess, err := session.New(trustedHosts)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	fileOpts := &reqfile.Options{}
	var results []*req.Requirement
	byKey := make(map[string]*req.Requirement)

	for _, src := range srcFiles {
		logger.Debug("ingesting", "file", src)
		reqs, err := ingest.ParseRequirements(cmd.Context(), src, sess, fileOpts, false, filepath.Dir(src))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", src, err)
		}
		for _, r := range reqs {
			if r.Constraint {
				// constraints bound resolution, which is not ours to do
				continue
			}
			key := req.Key(r)
			if existing, ok := byKey[key]; ok {
				// the same pin satisfies several top-level inputs
				if len(existing.SourceReqs) == 0 {
					first := *existing
					existing.SourceReqs = []*req.Requirement{&first}
				}
				existing.SourceReqs = append(existing.SourceReqs, r)
				existing.Hashes = append(existing.Hashes, r.Hashes...)
				if existing.Marker == "" {
					existing.Marker = r.Marker
				}
				continue
			}
			byKey[key] = r
			results = append(results, r)
		}
	}

	markers := make(map[string]string)
	hashes := make(map[*req.Requirement][]string)
	for _, r := range results {
		key := req.Key(r)
		if r.Marker != "" {
			markers[key] = r.Marker
		}
		if len(r.Hashes) > 0 {
			for _, pin := range r.Hashes {
				if _, _, err := hash.Parse(pin); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
			}
			hashes[r] = req.Dedup(r.Hashes)
			continue
		}
		if generateHashes && r.Link.IsFile() {
			pin, err := hash.FileHash(r.Link.Path)
			if err != nil {
				logger.Warn("could not hash local file", "requirement", key, "err", err)
				continue
			}
			hashes[r] = []string{pin}
		}
	}

	dst, closeDst, err := openOutput()
	if err != nil {
		return err
	}
	defer closeDst()

	w := &writer.Writer{
		Dst:             dst,
		Logger:          logger,
		DryRun:          dryRun,
		EmitHeader:      !noHeader,
		EmitIndexURL:    !noEmitIndexURL && !fileOpts.NoIndex,
		EmitTrustedHost: !noEmitTrusted,
		Annotate:        !noAnnotate,
		StripExtras:     stripExtras,
		GenerateHashes:  generateHashes,
		DefaultIndex:    writer.DefaultIndexURL,
		IndexURLs:       indexURLs(fileOpts),
		TrustedHosts:    append(trustedHosts, fileOpts.TrustedHosts...),
		FormatControl: writer.FormatControl{
			NoBinary:   append(noBinary, fileOpts.NoBinary...),
			OnlyBinary: append(onlyBinary, fileOpts.OnlyBinary...),
		},
		AllowUnsafe:    allowUnsafe,
		FindLinks:      append(findLinks, fileOpts.FindLinks...),
		EmitFindLinks:  !noEmitFindLink,
		EmitOptions:    !noEmitOptions,
		FromDir:        filepath.Dir(srcFiles[0]),
		CompileCommand: compileCommand(),
		PythonVersion:  pythonVersion(),
		UnsafePackages: unsafeSet(cfg),
	}

	if err := w.Write(results, nil, markers, hashes); err != nil {
		return err
	}

	if dryRun {
		logger.Warn("Dry-run, so nothing updated.")
	}
	return nil
}

// applyConfig fills in defaults from pyproject.toml for flags the user did
// not set on the command line.
func applyConfig(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	setBool := func(name string, value *bool, dst *bool) {
		if value != nil && !flags.Changed(name) {
			*dst = *value
		}
	}
	// negative flags store the inverse of their config key
	setInverse := func(name string, value *bool, dst *bool) {
		if value != nil && !flags.Changed(name) {
			*dst = !*value
		}
	}
	setInverse("no-header", cfg.Header, &noHeader)
	setInverse("no-annotate", cfg.Annotate, &noAnnotate)
	setInverse("no-emit-index-url", cfg.EmitIndexURL, &noEmitIndexURL)
	setInverse("no-emit-trusted-host", cfg.EmitTrustedHost, &noEmitTrusted)
	setInverse("no-emit-find-links", cfg.EmitFindLinks, &noEmitFindLink)
	setInverse("no-emit-options", cfg.EmitOptions, &noEmitOptions)
	setBool("dry-run", cfg.DryRun, &dryRun)
	setBool("strip-extras", cfg.StripExtras, &stripExtras)
	setBool("generate-hashes", cfg.GenerateHashes, &generateHashes)
	setBool("allow-unsafe", cfg.AllowUnsafe, &allowUnsafe)

	if cfg.IndexURL != nil && !flags.Changed("index-url") {
		indexURL = *cfg.IndexURL
	}
	if cfg.OutputFile != nil && !flags.Changed("output-file") {
		outputFile = *cfg.OutputFile
	}
	if !flags.Changed("extra-index-url") {
		extraIndexURLs = append(extraIndexURLs, cfg.ExtraIndexURLs...)
	}
	if !flags.Changed("find-links") {
		findLinks = append(findLinks, cfg.FindLinks...)
	}
	if !flags.Changed("trusted-host") {
		trustedHosts = append(trustedHosts, cfg.TrustedHosts...)
	}
	if !flags.Changed("no-binary") {
		noBinary = append(noBinary, cfg.NoBinary...)
	}
	if !flags.Changed("only-binary") {
		onlyBinary = append(onlyBinary, cfg.OnlyBinary...)
	}
}

func unsafeSet(cfg *config.Config) map[string]bool {
	if len(unsafePackages) > 0 {
		set := make(map[string]bool, len(unsafePackages))
		for _, name := range unsafePackages {
			set[req.NormalizeName(name)] = true
		}
		return set
	}
	return cfg.UnsafeSet()
}

// indexURLs assembles the ordered index list: the explicit --index-url (or
// the one found in the requirements files, or the default), followed by any
// extra index URLs.
func indexURLs(fileOpts *reqfile.Options) []string {
	primary := indexURL
	if primary == "" {
		primary = fileOpts.IndexURL
	}
	if primary == "" {
		primary = writer.DefaultIndexURL
	}
	urls := []string{primary}
	urls = append(urls, extraIndexURLs...)
	urls = append(urls, fileOpts.ExtraIndexURLs...)
	return urls
}

func openOutput() (io.Writer, func(), error) {
	if dryRun {
		// compute and log everything, touch nothing
		return io.Discard, func() {}, nil
	}
	if outputFile == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", outputFile, err)
	}
	return f, func() { f.Close() }, nil
}

// compileCommand reconstructs the invocation for the output header. The
// CUSTOM_COMPILE_COMMAND environment variable, handled by the writer,
// overrides it.
func compileCommand() string {
	parts := append([]string{"pip-compile"}, os.Args[1:]...)
	return strings.Join(parts, " ")
}

// pythonVersion asks the ambient interpreter for its major.minor version.
func pythonVersion() string {
	for _, python := range []string{"python3", "python"} {
		out, err := exec.Command(python, "-c", "import sys; print('%d.%d' % sys.version_info[:2])").Output()
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(out)); v != "" {
			return v
		}
	}
	return "3"
}
