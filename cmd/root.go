// Package cmd implements the wisp-installer command line.
package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"
	"golang.org/x/term"

	"github.com/wisp-renderer/wisp-installer/internal/config"
	"github.com/wisp-renderer/wisp-installer/internal/gitsync"
	"github.com/wisp-renderer/wisp-installer/internal/logging"
	"github.com/wisp-renderer/wisp-installer/internal/metrics"
)

const passwordEnv = "WISP_PASSWORD"

// rootParams are the flags shared by every command.
type rootParams struct {
	configFiles []string
	logLevel    logging.Level
	logFormat   logging.Format
	metricsFile string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// env is what a command needs once the shared flags are applied.
type env struct {
	cfg *config.Root
	log *logging.Logger
}

// Command returns the root command with every subcommand attached.
func Command() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	p := &rootParams{
		logLevel: logging.InfoLevel,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}

	root := &cobra.Command{
		Use:   "wisp-installer",
		Short: "Set up a Wisp renderer checkout for building",
		Long: `Set up a Wisp renderer checkout for building.

The install command clones the optional private dependencies, brings every
submodule to the commit recorded by the repository, copies the large assets
into the resource directory and generates the build files.`,
		SilenceUsage: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if p.metricsFile == "" {
				return nil
			}
			return metrics.WriteTextfile(p.metricsFile)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringSliceVarP(&p.configFiles, "config", "c", nil, "configuration file or directory (may be repeated)")
	flags.Var(enumflag.New(&p.logLevel, "level", logging.LevelIds, enumflag.EnumCaseInsensitive), "log-level", "log level: debug, info, warn or error")
	flags.Var(enumflag.New(&p.logFormat, "format", logging.FormatIds, enumflag.EnumCaseInsensitive), "log-format", "log format: text or json")
	flags.StringVar(&p.metricsFile, "metrics-file", "", "write metrics to this file on exit, in the text exposition format")

	root.AddCommand(
		newInstallCommand(p),
		newSyncCommand(p),
		newCloneCommand(p),
		newCleanCommand(p),
		newGenerateCommand(p),
		newAssetsCommand(p),
		newVersionCommand(p),
	)

	return root
}

// setup loads the configuration and builds the logger.
func (p *rootParams) setup() (*env, error) {
	noColor := true
	if f, ok := p.stderr.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	log := logging.NewLogger(logging.Config{
		Level:   p.logLevel,
		Format:  p.logFormat,
		Output:  p.stderr,
		NoColor: noColor,
	})

	if p.logLevel == logging.DebugLevel {
		gitsync.InstallDebugTransport(log.With("component", "http"))
	}

	cfg, err := config.Load(p.configFiles)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, log: log}, nil
}

func contextOf(c *cobra.Command) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
