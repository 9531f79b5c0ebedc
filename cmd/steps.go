package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wisp-renderer/wisp-installer/internal/gitsync"
	"github.com/wisp-renderer/wisp-installer/internal/installer"
	"github.com/wisp-renderer/wisp-installer/internal/progress"
	"github.com/wisp-renderer/wisp-installer/internal/prompt"
)

func newSyncCommand(rp *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Bring every submodule to the commit recorded by the repository",
		Long: `Bring every submodule to the commit recorded by the repository.

Missing gitlink files are repaired first. Local changes inside submodules are
discarded.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			e, err := rp.setup()
			if err != nil {
				return err
			}
			return installer.New(e.cfg, e.log, rp.stderr).Sync(contextOf(c))
		},
	}
}

type cloneParams struct {
	username       string
	nonInteractive bool
	strict         bool
	fingerprints   []string
	headers        []string
}

func newCloneCommand(rp *rootParams) *cobra.Command {
	p := &cloneParams{}

	c := &cobra.Command{
		Use:   "clone URL DEST",
		Short: "Clone a repository, negotiating authentication",
		Long: `Clone a repository, negotiating authentication.

The ssh agent is tried first, then the transport's own credentials, then the
given username and password. A failed clone is reported and exits
successfully unless --strict is set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			e, err := rp.setup()
			if err != nil {
				return err
			}

			creds, err := readCredentials(prompt.New(rp.stdin, rp.stdout), p.username, p.nonInteractive || p.username == "")
			if err != nil {
				return err
			}

			line := progress.NewLine(rp.stderr)
			defer line.Done()

			err = gitsync.NewCloner(creds, e.log).
				WithReporter(line).
				WithFingerprints(p.fingerprints).
				WithHeaders(p.headers).
				Clone(contextOf(c), args[0], args[1])
			if err != nil && !p.strict && gitsync.IsCloneError(err) {
				return nil
			}
			return err
		},
	}

	flags := c.Flags()
	flags.StringVar(&p.username, "username", "", "username for plain text authentication; the password is prompted for")
	flags.BoolVar(&p.nonInteractive, "non-interactive", false, "read the password from "+passwordEnv+" instead of prompting")
	flags.BoolVar(&p.strict, "strict", false, "exit with an error when the clone fails")
	flags.StringSliceVar(&p.fingerprints, "fingerprint", nil, "pinned SHA256 fingerprint of the ssh host key (may be repeated)")
	flags.StringSliceVar(&p.headers, "header", nil, `extra HTTP header, "Name: value" (may be repeated)`)

	return c
}

func newCleanCommand(rp *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the build directory",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			e, err := rp.setup()
			if err != nil {
				return err
			}
			return installer.New(e.cfg, e.log, rp.stderr).Clean()
		},
	}
}

func newGenerateCommand(rp *rootParams) *cobra.Command {
	var opts installer.Options

	c := &cobra.Command{
		Use:   "generate",
		Short: "Generate the build files",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			e, err := rp.setup()
			if err != nil {
				return err
			}
			return installer.New(e.cfg, e.log, rp.stderr).Generate(contextOf(c), opts)
		},
	}

	c.Flags().BoolVar(&opts.UnitTests, "unit-tests", false, "enable unit tests")
	c.Flags().BoolVar(&opts.Shared, "shared", false, "enable the shared build")

	return c
}

func newAssetsCommand(rp *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "Copy the large assets into the resource directory",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			e, err := rp.setup()
			if err != nil {
				return err
			}
			if err := installer.New(e.cfg, e.log, rp.stderr).StageAssets(contextOf(c)); err != nil {
				return fmt.Errorf("failed to stage assets: %w", err)
			}
			return nil
		},
	}
}
