package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

var wellknownFingerprints = []string{
	"SHA256:uNiVztksCsDhcc0u9e8BujQXVUpKZIDTMczCvj3tD2s", // github.com https://docs.github.com/en/github/authenticating-to-github/githubs-ssh-key-fingerprints
	"SHA256:p2QAMXNIC1TJYWeIOttrVc98/R1BUFWu3/LiyKgUfQM", // github.com
	"SHA256:+DiY3wvvV6TuJJhbpZisF/zLDA0zPMSvHdkr4UvCOqU", // github.com
	"SHA256:zzXQOXSRBEiUtuE8AikJYKwbHaxvSc0ojez9YXaGp1A", // bitbucket.org https://support.atlassian.com/bitbucket-cloud/docs/configure-ssh-and-two-step-verification/
	"SHA256:ohD8VZEXGWo6Ez8GSEJQ9WpafgLFsOfLOtGGQCQo6Og", // dev.azure.com
}

// Secret holds the credentials of private dependencies. Each secret is a
// map of key-value pairs, its type is declared by the "type" key:
//
//	gameworks:
//	  type: basic_auth
//	  username: me
//	  password: ${GAMEWORKS_PASSWORD}
//
// String values may refer to environment variables using the ${VAR_NAME}
// syntax.
//
// Supported types:
//
//   - "basic_auth": "username" and "password". "headers" (string array) is
//     optional and sets additional headers on HTTP requests.
//   - "github_app_auth": "integration_id", "installation_id" and
//     "private_key" (path to a PEM file). "api_url" is optional, for GitHub
//     Enterprise.
//   - "ssh_key": "key" (private key as PEM). "passphrase" and
//     "fingerprints" (string array) are optional.
//   - "token_auth": "token", sent as a bearer token.
type Secret struct {
	Name  string         `json:"-"`
	Value map[string]any `json:"-"`
}

func (s *Secret) Ref() *SecretRef {
	return &SecretRef{Name: s.Name, value: s}
}

func (*Secret) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.Object)
	return nil
}

func (s *Secret) MarshalYAML() (any, error) {
	if len(s.Value) == 0 {
		return map[string]any{}, nil
	}
	return s.Value, nil
}

func (s *Secret) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *Secret) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Value); err != nil {
		return fmt.Errorf("expected mapping node: %w", err)
	}
	return nil
}

func (s *Secret) UnmarshalJSON(bs []byte) error {
	return json.Unmarshal(bs, &s.Value)
}

// get expands environment variable references in string values.
func (s *Secret) get() map[string]any {
	value := make(map[string]any, len(s.Value))

	for k, v := range s.Value {
		switch v := v.(type) {
		case string:
			value[k] = os.ExpandEnv(v)
		default: // Keep non-string values as is
			value[k] = v
		}
	}

	return value
}

// Typed decodes the secret into one of the Secret* types.
func (s *Secret) Typed(context.Context) (any, error) {
	m := s.get()

	if len(m) == 0 {
		return nil, fmt.Errorf("secret %q is not configured", s.Name)
	}

	switch m["type"] {
	case "basic_auth":
		var value SecretBasicAuth
		if err := decode(m, &value); err != nil {
			return nil, err
		} else if value.Password == "" {
			return nil, fmt.Errorf("secret %q: missing password in basic_auth secret", s.Name)
		}

		return &value, nil

	case "github_app_auth":
		var value SecretGitHubApp
		if err := decode(m, &value); err != nil {
			return nil, err
		} else if value.IntegrationID == 0 || value.InstallationID == 0 || value.PrivateKey == "" {
			return nil, fmt.Errorf("secret %q: missing integration_id, installation_id or private_key in github_app_auth secret", s.Name)
		}

		return &value, nil

	case "ssh_key":
		var value SecretSSHKey
		if err := decode(m, &value); err != nil {
			return nil, err
		} else if value.Key == "" {
			return nil, errors.New("missing key in SSH secret")
		}

		// If no fingerprints are provided, use well-known ones for popular services.
		if len(value.Fingerprints) == 0 {
			value.Fingerprints = wellknownFingerprints
		}

		return &value, nil

	case "token_auth":
		var value SecretTokenAuth
		if err := decode(m, &value); err != nil {
			return nil, err
		} else if value.Token == "" {
			return nil, fmt.Errorf("secret %q: missing token in token_auth secret", s.Name)
		}

		return &value, nil

	default:
		return nil, fmt.Errorf("unknown secret type %q", s.Value["type"])
	}
}

type SecretGitHubApp struct {
	IntegrationID  int64  `json:"integration_id"`
	InstallationID int64  `json:"installation_id"`
	PrivateKey     string `json:"private_key"`       // Path to the private key PEM file.
	APIURL         string `json:"api_url,omitempty"` // GitHub Enterprise API base URL.
}

type SecretSSHKey struct {
	Key          string   `json:"key"`                    // Private key as PEM.
	Passphrase   string   `json:"passphrase,omitempty"`   // Optional passphrase for the private key.
	Fingerprints []string `json:"fingerprints,omitempty"` // Optional SSH key fingerprints.
}

type SecretBasicAuth struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Headers  []string `json:"headers,omitempty"` // Optional additional headers for HTTP requests.
}

type SecretTokenAuth struct {
	Token string `json:"token"` // Bearer token for HTTP authentication.
}

// we use this one so we don't need duplicate tags on every struct
func decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		TagName:          "json",
		Metadata:         nil,
		Result:           output,
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
