package credentials

import (
	"strings"

	"github.com/go-git/go-git/v5/config"
	format "github.com/go-git/go-git/v5/plumbing/format/config"
)

// HelperUsername returns the username configured for url in the global git
// configuration: credential.<url>.username, falling back to
// credential.username. Errors reading the configuration yield "".
func HelperUsername(url string) string {
	cfg, err := config.LoadConfig(config.GlobalScope)
	if err != nil {
		return ""
	}
	return helperUsername(cfg.Raw, url)
}

// helperUsername picks the credential subsection whose name is the longest
// prefix of url.
func helperUsername(raw *format.Config, url string) string {
	if raw == nil || !raw.HasSection("credential") {
		return ""
	}
	section := raw.Section("credential")

	var username string
	var best int
	for _, sub := range section.Subsections {
		if !sub.HasOption("username") || !matchesURL(sub.Name, url) {
			continue
		}
		if len(sub.Name) > best {
			best = len(sub.Name)
			username = sub.Option("username")
		}
	}
	if username != "" {
		return username
	}
	return section.Option("username")
}

func matchesURL(pattern, url string) bool {
	pattern = strings.TrimSuffix(pattern, "/")
	if !strings.HasPrefix(url, pattern) {
		return false
	}
	rest := url[len(pattern):]
	return rest == "" || rest[0] == '/' || rest[0] == ':'
}
