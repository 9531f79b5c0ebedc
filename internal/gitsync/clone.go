// Package gitsync clones optional dependencies that may require
// authentication. The Cloner asks a credentials.Negotiator how to
// authenticate and retries with the remaining mechanisms whenever the remote
// rejects one. Clone failures are reported to the caller, which is expected
// to log them and carry on.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/wisp-renderer/wisp-installer/internal/credentials"
	"github.com/wisp-renderer/wisp-installer/internal/logging"
	"github.com/wisp-renderer/wisp-installer/internal/metrics"
	"github.com/wisp-renderer/wisp-installer/internal/progress"
)

// AccessHint is logged with every failed clone.
const AccessHint = "is your account a member of the group that grants access to this repository?"

func init() {
	// For Azure DevOps compatibility. More details: https://github.com/go-git/go-git/issues/64
	transport.UnsupportedCapabilities = []capability.Capability{
		capability.ThinPack,
	}
}

// CloneError is a failed clone. It is not fatal to the installation.
type CloneError struct {
	URL  string
	Dest string
	Err  error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s into %s: %v", e.URL, e.Dest, e.Err)
}

func (e *CloneError) Unwrap() error {
	return e.Err
}

type Cloner struct {
	negotiator   *credentials.Negotiator
	logger       *logging.Logger
	reporter     progress.Reporter
	fingerprints []string
	headers      []string
	auth         transport.AuthMethod
}

// NewCloner returns a cloner negotiating with the given credentials.
func NewCloner(creds credentials.Credentials, logger *logging.Logger) *Cloner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cloner{
		negotiator: credentials.NewNegotiator(creds, logger),
		logger:     logger,
		reporter:   progress.Discard,
	}
}

func (c *Cloner) WithReporter(r progress.Reporter) *Cloner {
	c.reporter = r
	return c
}

// WithFingerprints pins the SHA256 fingerprints accepted for ssh host keys.
// Without pins, known_hosts is consulted.
func (c *Cloner) WithFingerprints(fingerprints []string) *Cloner {
	c.fingerprints = fingerprints
	return c
}

// WithHeaders sets extra HTTP headers, each formatted "Name: value".
func (c *Cloner) WithHeaders(headers []string) *Cloner {
	c.headers = headers
	return c
}

// WithAuth uses a fixed auth method, typically from AuthFromSecret, instead
// of negotiating.
func (c *Cloner) WithAuth(auth transport.AuthMethod) *Cloner {
	c.auth = auth
	return c
}

func (c *Cloner) WithUsernameLookup(lookup credentials.UsernameLookup) *Cloner {
	c.negotiator.WithUsernameLookup(lookup)
	return c
}

// Clone clones url into dest. A destination that already holds a clone of
// url is left alone. Errors are returned as *CloneError.
func (c *Cloner) Clone(ctx context.Context, url, dest string) error {
	startTime := time.Now()

	if sameOrigin(dest, url) {
		c.logger.Infof("%s is already cloned into %s, skipping", url, dest)
		return nil
	}

	c.logger.Infof("cloning %s into %s", url, dest)
	if err := c.clone(ctx, url, dest); err != nil {
		metrics.CloneFailure(url)
		cerr := &CloneError{URL: url, Dest: dest, Err: err}
		c.logger.Errorf("%v; %s", cerr, AccessHint)
		return cerr
	}

	metrics.CloneSucceeded(url, startTime)
	c.logger.Infof("cloned %s", url)
	return nil
}

func (c *Cloner) clone(ctx context.Context, url, dest string) error {
	if c.auth != nil {
		return c.plainClone(ctx, url, dest, c.auth)
	}

	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return err
	}

	allowed := credentials.Advertised(ep)
	var lastErr error
	for {
		cred, err := c.negotiator.Negotiate(credentials.Request{URL: url, Username: ep.User, Allowed: allowed})
		if err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w: %w", err, lastErr)
			}
			return err
		}
		metrics.CloneAuthAttempts.WithLabelValues(cred.Mechanism.String()).Inc()

		auth, err := c.authMethod(ep, cred)
		if err == nil {
			err = c.plainClone(ctx, url, dest, auth)
			if err == nil || !isAuthError(err) {
				return err
			}
		}

		c.logger.Debugf("%s authentication with %s failed: %v", cred.Mechanism, url, err)
		lastErr = err
		allowed = credentials.Rejected(ep, allowed, cred.Mechanism)
	}
}

// plainClone clones once with auth. Retries rely on go-git removing a dest
// that did not exist or was empty when a clone fails.
func (c *Cloner) plainClone(ctx context.Context, url, dest string, auth transport.AuthMethod) error {
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:      url,
		Auth:     auth,
		Progress: progress.NewSidebandWriter(c.reporter),
	})
	return err
}

func sameOrigin(dest, url string) bool {
	r, err := git.PlainOpen(dest)
	if err != nil {
		return false
	}
	remote, err := r.Remote(git.DefaultRemoteName)
	if err != nil {
		return false
	}
	urls := remote.Config().URLs
	return len(urls) > 0 && urls[0] == url
}

// IsCloneError reports whether err is a failed clone.
func IsCloneError(err error) bool {
	var cerr *CloneError
	return errors.As(err, &cerr)
}
