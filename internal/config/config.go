package config

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/google/shlex"
)

// Configuration data structures of the installer.

// Root is the top-level configuration structure.
type Root struct {
	// Repository is the working tree of the primary repository. Relative
	// paths elsewhere in the configuration are relative to it.
	Repository   string                 `json:"repository,omitempty"`
	Build        *Build                 `json:"build,omitempty"`
	Assets       *Assets                `json:"assets,omitempty"`
	Dependencies map[string]*Dependency `json:"dependencies,omitempty"`
	Submodules   *Submodules            `json:"submodules,omitempty"`
	Secrets      map[string]*Secret     `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.

	_ struct{} `additionalProperties:"false"`
}

// Build configures the build-file generator.
type Build struct {
	Directory    string `json:"directory,omitempty"`
	Generator    string `json:"generator,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Command      string `json:"command,omitempty"`
	// ExtraArgs are appended to the generator command line, split the way a
	// POSIX shell would.
	ExtraArgs string `json:"extra_args,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (b *Build) Args() ([]string, error) {
	if b.ExtraArgs == "" {
		return nil, nil
	}
	args, err := shlex.Split(b.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("build.extra_args: %w", err)
	}
	return args, nil
}

// Assets configures large binary assets copied into the resource tree.
type Assets struct {
	Destination string   `json:"destination,omitempty"`
	Sources     []string `json:"sources,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Dependency is an optional repository cloned with authentication.
type Dependency struct {
	Name        string     `json:"-"`
	Repo        string     `json:"repo" required:"true"`
	Path        string     `json:"path" required:"true"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, the prompted username and password are negotiated.
	// Note, JSON schema validation overrides this to string type.
	Fingerprints []string `json:"fingerprints,omitempty"` // SSH host key fingerprints to pin.
	Headers      []string `json:"headers,omitempty"`      // Extra HTTP headers, "Name: value".

	_ struct{} `additionalProperties:"false"`
}

// Submodules configures how submodule remotes are fetched.
type Submodules struct {
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, the transport defaults apply.

	_ struct{} `additionalProperties:"false"`
}

const (
	DefaultRepository        = "."
	DefaultBuildDirectory    = "build_vs2019_win64"
	DefaultGenerator         = "Visual Studio 16 2019"
	DefaultArchitecture      = "x64"
	DefaultGeneratorCommand  = "cmake"
	DefaultAssetsDestination = "resources"
)

// Default returns the configuration used when no configuration file is
// given.
func Default() *Root {
	r := &Root{}
	r.SetDefaults()
	return r
}

func defaultDependencies() map[string]*Dependency {
	return map[string]*Dependency{
		"hbao": {
			Repo: "https://github.com/NVIDIAGameWorks/HBAOPlus.git",
			Path: "deps/hbao+",
		},
		"ansel": {
			Repo: "https://github.com/NVIDIAGameWorks/AnselSDK.git",
			Path: "deps/ansel",
		},
	}
}

// SetDefaults fills in every unset setting. An absent dependencies section
// means the default dependencies; an empty one means none.
func (r *Root) SetDefaults() {
	r.Repository = cmp.Or(r.Repository, DefaultRepository)

	if r.Build == nil {
		r.Build = &Build{}
	}
	r.Build.Directory = cmp.Or(r.Build.Directory, DefaultBuildDirectory)
	r.Build.Generator = cmp.Or(r.Build.Generator, DefaultGenerator)
	r.Build.Architecture = cmp.Or(r.Build.Architecture, DefaultArchitecture)
	r.Build.Command = cmp.Or(r.Build.Command, DefaultGeneratorCommand)

	if r.Assets == nil {
		r.Assets = &Assets{
			Sources: []string{"deps/Wisp-LFS/materials", "deps/Wisp-LFS/models"},
		}
	}
	r.Assets.Destination = cmp.Or(r.Assets.Destination, DefaultAssetsDestination)

	if r.Dependencies == nil {
		r.Dependencies = defaultDependencies()
	}
	_ = r.unmarshal(r)
}

// UnmarshalYAML names every dependency and secret after its key and links
// secret references to the secrets they name.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	for name := range raw.Secrets {
		raw.Secrets[name] = cmp.Or(raw.Secrets[name], &Secret{})
		raw.Secrets[name].Name = name
	}

	for name := range raw.Dependencies {
		if raw.Dependencies[name] == nil {
			delete(raw.Dependencies, name)
			continue
		}
		raw.Dependencies[name].Name = name
		if raw.Dependencies[name].Credentials != nil {
			raw.Dependencies[name].Credentials.value = raw.Secrets[raw.Dependencies[name].Credentials.Name]
		}
	}

	if raw.Submodules != nil && raw.Submodules.Credentials != nil {
		raw.Submodules.Credentials.value = raw.Secrets[raw.Submodules.Credentials.Name]
	}

	return nil
}

// SortedDependencies iterates over the dependencies in name order.
func (r *Root) SortedDependencies() iter.Seq2[int, *Dependency] {
	return iterator(r.Dependencies, func(d *Dependency) string { return d.Name })
}

func (r *Root) SortedSecrets() iter.Seq2[int, *Secret] {
	return iterator(r.Secrets, func(s *Secret) string { return s.Name })
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

// Check reports configuration errors the schema cannot express.
func (r *Root) Check() error {
	var errs []error
	for _, dep := range r.SortedDependencies() {
		if dep.Credentials != nil && dep.Credentials.value == nil {
			errs = append(errs, fmt.Errorf("dependency %q: secret %q not found", dep.Name, dep.Credentials.Name))
		}
	}
	if r.Submodules != nil && r.Submodules.Credentials != nil && r.Submodules.Credentials.value == nil {
		errs = append(errs, fmt.Errorf("submodules: secret %q not found", r.Submodules.Credentials.Name))
	}
	if r.Build != nil {
		if _, err := r.Build.Args(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

type SecretRef struct {
	Name  string `json:"-"`
	value *Secret
}

// Resolve retrieves the secret value from the secret store. If the secret is
// not found, an error is returned.
func (s *SecretRef) Resolve(ctx context.Context) (any, error) {
	if s.value == nil {
		return nil, fmt.Errorf("secret %q not found", s.Name)
	}

	return s.value.Typed(ctx)
}

func (s *SecretRef) MarshalYAML() (any, error) {
	if s.Name == "" {
		return nil, nil
	}
	return s.Name, nil
}

func (s *SecretRef) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *SecretRef) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	return nil
}

func (s *SecretRef) UnmarshalJSON(bs []byte) error {
	if err := json.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("failed to unmarshal SecretRef: %w", err)
	}

	return nil
}

// ParseFile parses a single configuration file.
func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

// Parse validates bs against the configuration schema, decodes it and fills
// in defaults.
func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	root.SetDefaults()
	if err := root.Check(); err != nil {
		return nil, err
	}

	return &root, nil
}

// Load merges the given configuration files, or directories of them, and
// parses the result. Without files it returns the defaults.
func Load(files []string) (*Root, error) {
	if len(files) == 0 {
		return Default(), nil
	}

	bs, err := Merge(files, false)
	if err != nil {
		return nil, err
	}

	return Parse(bs)
}
