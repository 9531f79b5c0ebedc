package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wisp-renderer/wisp-installer/internal/credentials"
	"github.com/wisp-renderer/wisp-installer/internal/installer"
	"github.com/wisp-renderer/wisp-installer/internal/prompt"
)

type installParams struct {
	unitTests      bool
	shared         bool
	clean          bool
	privateDeps    bool
	username       string
	nonInteractive bool
	pause          bool
}

func newInstallCommand(rp *rootParams) *cobra.Command {
	p := &installParams{}

	c := &cobra.Command{
		Use:   "install",
		Short: "Run the full installation",
		Long: `Run the full installation: clean, clone private dependencies, synchronize
submodules, stage assets and generate the build files.

Options that are not given as flags are asked for interactively, defaulting
to no. With --non-interactive, unset options are off and the password of
private dependencies is read from ` + passwordEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			e, err := rp.setup()
			if err != nil {
				return err
			}

			pr := prompt.New(rp.stdin, rp.stdout)
			opts, err := p.options(c, pr)
			if err != nil {
				return err
			}

			summary, err := installer.New(e.cfg, e.log, rp.stderr).Run(contextOf(c), opts)
			if err != nil {
				return err
			}
			if summary.Failed() {
				fmt.Fprintf(rp.stdout, "Finished with %d reported errors:\n", len(summary.Reported))
				if err := printSummary(rp.stdout, summary); err != nil {
					return err
				}
			}

			if p.pause && !p.nonInteractive {
				return pr.Pause()
			}
			return nil
		},
	}

	flags := c.Flags()
	flags.BoolVar(&p.unitTests, "unit-tests", false, "enable unit tests")
	flags.BoolVar(&p.shared, "shared", false, "enable the shared build")
	flags.BoolVar(&p.clean, "clean", false, "remove the build directory first")
	flags.BoolVar(&p.privateDeps, "private-deps", false, "clone the private dependencies")
	flags.StringVar(&p.username, "username", "", "username for private dependencies")
	flags.BoolVar(&p.nonInteractive, "non-interactive", false, "never prompt")
	flags.BoolVar(&p.pause, "pause", false, "wait for enter before exiting")

	return c
}

// options completes the flags with the user's answers.
func (p *installParams) options(c *cobra.Command, pr *prompt.Prompter) (installer.Options, error) {
	opts := installer.Options{
		UnitTests:   p.unitTests,
		Shared:      p.shared,
		Clean:       p.clean,
		PrivateDeps: p.privateDeps,
	}

	questions := []struct {
		flag     string
		question string
		answer   *bool
	}{
		{"unit-tests", "Enable Unit Tests?", &opts.UnitTests},
		{"shared", "Enable Shared Build?", &opts.Shared},
		{"clean", "Do A Clean Build?", &opts.Clean},
		{"private-deps", "Install private dependencies?", &opts.PrivateDeps},
	}
	if !p.nonInteractive {
		for _, q := range questions {
			if c.Flags().Changed(q.flag) {
				continue
			}
			answer, err := pr.Confirm(q.question)
			if err != nil {
				return opts, fmt.Errorf("failed to read answer: %w", err)
			}
			*q.answer = answer
		}
	}

	if !opts.PrivateDeps {
		return opts, nil
	}

	creds, err := readCredentials(pr, p.username, p.nonInteractive)
	if err != nil {
		return opts, err
	}
	opts.Credentials = creds
	return opts, nil
}

// readCredentials asks for the username and password of private
// dependencies, unless they are given or prompting is off.
func readCredentials(pr *prompt.Prompter, username string, nonInteractive bool) (credentials.Credentials, error) {
	creds := credentials.Credentials{Username: username, Password: os.Getenv(passwordEnv)}
	if nonInteractive {
		return creds, nil
	}

	if creds.Username == "" {
		u, err := pr.Username()
		if err != nil {
			return creds, fmt.Errorf("failed to read username: %w", err)
		}
		creds.Username = u
	}
	if creds.Password == "" {
		pw, err := pr.Password()
		if err != nil {
			return creds, err
		}
		creds.Password = pw
	}
	return creds, nil
}
