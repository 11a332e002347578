package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"toolv/internal/domain"
)

// ManifestName is the optional per-plugin manifest file at the checkout root.
const ManifestName = "toolv.plugin.toml"

// Manifest carries plugin metadata that overrides or tunes script behavior.
// Every field is optional; the zero value means "scripts decide everything".
type Manifest struct {
	ExecEnv             ManifestExecEnv     `toml:"exec_env"`
	ListAliases         ManifestAliases     `toml:"list_aliases"`
	ListLegacyFilenames ManifestLegacyFiles `toml:"list_legacy_filenames"`
}

// ManifestExecEnv tunes exec-env caching. CacheKey is a template expanded
// per tool version; versions rendering to the same key share a cache entry.
type ManifestExecEnv struct {
	CacheKey string `toml:"cache_key"`
}

// ManifestAliases supplies the alias table literally, short-circuiting the
// list-aliases script.
type ManifestAliases struct {
	Data map[string]string `toml:"data"`
}

// ManifestLegacyFiles supplies the legacy filename list literally,
// short-circuiting the list-legacy-filenames script.
type ManifestLegacyFiles struct {
	Data []string `toml:"data"`
}

// LoadManifest reads dir/toolv.plugin.toml. A missing file yields the zero
// manifest; a malformed one is an error.
func LoadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return m, domain.Wrap(domain.CodeUnavailable, "plugin.LoadManifest", "", err)
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return m, domain.E(domain.CodeInvalidArgument, "plugin.LoadManifest",
			fmt.Sprintf("malformed %s in %s", ManifestName, dir), err)
	}
	return m, nil
}

var cacheKeyTokenPattern = regexp.MustCompile(`\{[^{}]*\}`)

// RenderCacheKey expands the exec-env cache key template for one tool
// version. Tokens: {version}, {install_type}, {opt:<key>}. ok is false when
// no template is declared. Unknown tokens are an error so a typo cannot
// silently collide cache entries.
func (m Manifest) RenderCacheKey(tv domain.ToolVersion) (string, bool, error) {
	tpl := m.ExecEnv.CacheKey
	if tpl == "" {
		return "", false, nil
	}
	var tokErr error
	rendered := cacheKeyTokenPattern.ReplaceAllStringFunc(tpl, func(tok string) string {
		name := tok[1 : len(tok)-1]
		switch {
		case name == "version":
			return tv.Version
		case name == "install_type":
			return tv.InstallType()
		case strings.HasPrefix(name, "opt:"):
			v, _ := tv.Opts.Get(strings.TrimPrefix(name, "opt:"))
			return v
		}
		if tokErr == nil {
			tokErr = domain.E(domain.CodeInvalidArgument, "plugin.RenderCacheKey",
				fmt.Sprintf("unknown cache key token %s", tok), nil)
		}
		return tok
	})
	if tokErr != nil {
		return "", false, tokErr
	}
	return rendered, true, nil
}
