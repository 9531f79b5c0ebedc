package gitsync

import (
	"net/http"
	"net/http/httputil"
	"regexp"

	"github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/wisp-renderer/wisp-installer/internal/logging"
)

var authorizationHeader = regexp.MustCompile(`(?mi)^(Authorization:\s*\S+).*$`)

// LoggingTransport is an http.RoundTripper that logs requests and responses
// at debug level. Credentials are redacted.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *logging.Logger
}

// NewLoggingTransport creates a new LoggingTransport. If transport is nil,
// http.DefaultTransport is used.
func NewLoggingTransport(transport http.RoundTripper, logger *logging.Logger) *LoggingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LoggingTransport{
		Transport: transport,
		Logger:    logger,
	}
}

// RoundTrip executes a single HTTP transaction, logging the request and
// response headers.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqDump, err := httputil.DumpRequestOut(req, false)
	if err != nil {
		t.Logger.Debugf("error dumping request: %v", err)
	} else {
		t.Logger.Debugf("request:\n%s", redact(reqDump))
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		t.Logger.Debugf("error making request: %v", err)
		return resp, err
	}

	respDump, err := httputil.DumpResponse(resp, false)
	if err != nil {
		t.Logger.Debugf("error dumping response: %v", err)
	} else {
		t.Logger.Debugf("response:\n%s", respDump)
	}

	return resp, nil
}

func redact(dump []byte) []byte {
	return authorizationHeader.ReplaceAll(dump, []byte("$1 <redacted>"))
}

// InstallDebugTransport routes go-git http and https traffic through a
// LoggingTransport.
func InstallDebugTransport(logger *logging.Logger) {
	c := githttp.NewClient(&http.Client{Transport: NewLoggingTransport(nil, logger)})
	client.InstallProtocol("http", c)
	client.InstallProtocol("https", c)
}
