package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "pip-compile [src-files...]",
	Short: "Pin requirements into a deterministic requirements.txt",
	Long: `pip-compile reads requirements from requirements.in files and writes a
fully pinned requirements.txt with stable ordering, provenance
annotations, and optional hashes.

Defaults can be set in the [tool.pip-tools] table of pyproject.toml;
command-line flags take precedence.`,
	Version:      Version,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runCompile,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show more output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "show less output")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
