// Package registry maps short plugin names like "nodejs" to the git
// repositories hosting them. A built-in table ships with the binary; a user
// registry file can extend or override it.
package registry

import (
	_ "embed"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"toolv/internal/domain"
)

//go:embed registry.yaml
var defaultRegistryYAML []byte

// Registry resolves short names to repository urls.
type Registry struct {
	urls map[string]string
}

// Load builds the registry. userFile is optional and may not exist; entries
// in it win over the built-in table. disableDefaults drops the built-in
// table entirely.
func Load(userFile string, disableDefaults bool) (*Registry, error) {
	const op = "registry.Load"

	urls := map[string]string{}
	if !disableDefaults {
		if err := yaml.Unmarshal(defaultRegistryYAML, &urls); err != nil {
			return nil, domain.Wrap(domain.CodeInternal, op, "failed to parse built-in registry", err)
		}
	}
	if userFile != "" {
		raw, err := os.ReadFile(userFile)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, domain.Wrap(domain.CodeUnavailable, op, "failed to read registry file "+userFile, err)
		default:
			user := map[string]string{}
			if err := yaml.Unmarshal(raw, &user); err != nil {
				return nil, domain.Wrap(domain.CodeInvalidArgument, op, "failed to parse registry file "+userFile, err)
			}
			for name, url := range user {
				urls[name] = url
			}
		}
	}
	return &Registry{urls: urls}, nil
}

// LookupURL returns the repository url for a short name.
func (r *Registry) LookupURL(name string) (string, bool) {
	url, ok := r.urls[name]
	return url, ok
}

// Names returns every known short name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.urls))
	for name := range r.urls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of known short names.
func (r *Registry) Len() int { return len(r.urls) }
