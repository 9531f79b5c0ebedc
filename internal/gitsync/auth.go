package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	gohttp "net/http"
	"os"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"

	"github.com/wisp-renderer/wisp-installer/internal/config"
	"github.com/wisp-renderer/wisp-installer/internal/credentials"
)

// authMethod builds the go-git auth method for a negotiated credential.
func (c *Cloner) authMethod(ep *transport.Endpoint, cred credentials.Credential) (transport.AuthMethod, error) {
	switch cred.Mechanism {
	case credentials.SSHAgent:
		auth, err := gitssh.NewSSHAgentAuth(cred.Username)
		if err != nil {
			return nil, err
		}
		if len(c.fingerprints) > 0 {
			auth.HostKeyCallback = newCheckFingerprints(c.fingerprints)
		}
		return auth, nil

	case credentials.Plaintext:
		if ep.Protocol == "ssh" {
			auth := &gitssh.Password{User: cred.Username, Password: cred.Password}
			if len(c.fingerprints) > 0 {
				auth.HostKeyCallback = newCheckFingerprints(c.fingerprints)
			}
			return auth, nil
		}
		return &basicAuth{Username: cred.Username, Password: cred.Password, Headers: c.headers}, nil

	case credentials.Default:
		if len(c.headers) > 0 && isHTTP(ep) {
			return &basicAuth{Headers: c.headers}, nil
		}
		return nil, nil
	}

	return nil, fmt.Errorf("unsupported authentication mechanism %v", cred.Mechanism)
}

func isHTTP(ep *transport.Endpoint) bool {
	return ep.Protocol == "http" || ep.Protocol == "https"
}

// isAuthError reports whether err means the remote refused the credentials,
// as opposed to failing for another reason.
func isAuthError(err error) bool {
	return errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		strings.Contains(err.Error(), "unable to authenticate")
}

// AuthFromSecret converts a resolved dependency secret into an auth method.
// Secret-backed dependencies use it instead of negotiating.
func AuthFromSecret(ctx context.Context, value any) (transport.AuthMethod, error) {
	return authFromTyped(ctx, &defaultGitHub, value)
}

var defaultGitHub github

func authFromTyped(ctx context.Context, gh *github, value any) (transport.AuthMethod, error) {
	switch value := value.(type) {
	case *config.SecretBasicAuth:
		return &basicAuth{
			Username: value.Username,
			Password: value.Password,
			Headers:  value.Headers,
		}, nil

	case *config.SecretGitHubApp:
		token, err := gh.Token(ctx, value.IntegrationID, value.InstallationID, value.PrivateKey, value.APIURL)
		if err != nil {
			return nil, err
		}
		return &http.BasicAuth{Username: "x-access-token", Password: token}, nil

	case *config.SecretSSHKey:
		return newSSHAuth(value.Key, value.Passphrase, value.Fingerprints)

	case *config.SecretTokenAuth:
		return &tokenAuth{token: value.Token}, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type for git: %T", value)
	}
}

type github struct {
	integrationID  int64
	installationID int64
	privateKey     []byte
	apiURL         string
	tr             *ghinstallation.Transport
	mu             sync.Mutex
}

func (gh *github) Token(ctx context.Context, integrationID, installationID int64, privateKeyFile, apiURL string) (string, error) {
	privateKey, err := os.ReadFile(privateKeyFile)
	if err != nil {
		return "", err
	}

	tr, err := gh.transport(integrationID, installationID, privateKey, apiURL)
	if err != nil {
		return "", err
	}

	return tr.Token(ctx)
}

func (gh *github) transport(integrationID, installationID int64, privateKey []byte, apiURL string) (*ghinstallation.Transport, error) {
	gh.mu.Lock()
	defer gh.mu.Unlock()

	if gh.tr == nil || gh.integrationID != integrationID || gh.installationID != installationID || gh.apiURL != apiURL || !bytes.Equal(gh.privateKey, privateKey) {
		tr, err := ghinstallation.New(gohttp.DefaultTransport, integrationID, installationID, privateKey)
		if err != nil {
			return nil, err
		}
		if apiURL != "" {
			tr.BaseURL = strings.TrimSuffix(apiURL, "/")
		}

		gh.integrationID = integrationID
		gh.installationID = installationID
		gh.privateKey = privateKey
		gh.apiURL = apiURL
		gh.tr = tr
	}

	return gh.tr, nil
}

func newSSHAuth(key string, passphrase string, fingerprints []string) (gitssh.AuthMethod, error) {
	var signer ssh.Signer
	var err error
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey([]byte(key))
	}
	if err != nil {
		return nil, err
	}

	if len(fingerprints) == 0 {
		return nil, errors.New("ssh: at least one fingerprint is required when using ssh_key authentication")
	}

	return &gitssh.PublicKeys{
		User:   credentials.DefaultUsername,
		Signer: signer,
		HostKeyCallbackHelper: gitssh.HostKeyCallbackHelper{
			HostKeyCallback: newCheckFingerprints(fingerprints),
		},
	}, nil
}

func newCheckFingerprints(fingerprints []string) ssh.HostKeyCallback {
	m := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		m[fp] = true
	}

	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(key)
		if !m[fingerprint] {
			return fmt.Errorf("ssh: unknown fingerprint (%s) for %s", fingerprint, hostname)
		}
		return nil
	}
}

// basicAuth provides HTTP basic authentication but in addition can set
// extra headers. Without username and password only the headers are sent.
type basicAuth struct {
	Username string
	Password string
	Headers  []string
}

func (a *basicAuth) String() string {
	creds := credentials.Credentials{Username: a.Username, Password: a.Password}
	return fmt.Sprintf("%s - %s [%s]", a.Name(), creds, strings.Join(a.Headers, ", "))
}

func (*basicAuth) Name() string {
	return "http-basic-auth-extra"
}

func (a *basicAuth) SetAuth(r *gohttp.Request) {
	if a.Username != "" || a.Password != "" {
		r.SetBasicAuth(a.Username, a.Password)
	}
	for _, header := range a.Headers {
		name, value, found := strings.Cut(header, ":")
		if found {
			r.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
}

// tokenAuth sends a static bearer token.
type tokenAuth struct {
	token string
}

func (a *tokenAuth) String() string {
	return a.Name() + " - token-based"
}

func (*tokenAuth) Name() string {
	return "http-bearer-token"
}

func (a *tokenAuth) SetAuth(r *gohttp.Request) {
	r.Header.Set("Authorization", "Bearer "+a.token)
}
