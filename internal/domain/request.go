package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

type RequestKind string

const (
	KindVersion RequestKind = "version"
	KindPrefix  RequestKind = "prefix"
	KindRef     RequestKind = "ref"
	KindPath    RequestKind = "path"
	KindSystem  RequestKind = "system"
)

// ToolVersionRequest is a user-facing specifier for one version of one tool.
// Value holds the version token, prefix, git ref, or filesystem path; it is
// empty for system requests.
type ToolVersionRequest struct {
	Plugin string
	Kind   RequestKind
	Value  string
}

func NewVersionRequest(plugin, version string) ToolVersionRequest {
	return ToolVersionRequest{Plugin: plugin, Kind: KindVersion, Value: version}
}

func NewPrefixRequest(plugin, prefix string) ToolVersionRequest {
	return ToolVersionRequest{Plugin: plugin, Kind: KindPrefix, Value: prefix}
}

func NewRefRequest(plugin, ref string) ToolVersionRequest {
	return ToolVersionRequest{Plugin: plugin, Kind: KindRef, Value: ref}
}

func NewPathRequest(plugin, path string) ToolVersionRequest {
	return ToolVersionRequest{Plugin: plugin, Kind: KindPath, Value: path}
}

func NewSystemRequest(plugin string) ToolVersionRequest {
	return ToolVersionRequest{Plugin: plugin, Kind: KindSystem}
}

// ParseRequest interprets ref:/prefix:/path: sub-syntax and the system
// keyword. Unknown schemes are rejected rather than treated as versions.
func ParseRequest(plugin, token string) (ToolVersionRequest, error) {
	if scheme, rest, ok := strings.Cut(token, ":"); ok {
		switch scheme {
		case "ref":
			return NewRefRequest(plugin, rest), nil
		case "prefix":
			return NewPrefixRequest(plugin, rest), nil
		case "path":
			return NewPathRequest(plugin, rest), nil
		default:
			return ToolVersionRequest{}, E(CodeInvalidArgument, "domain.ParseRequest",
				fmt.Sprintf("invalid tool version request %q", token), nil)
		}
	}
	if token == "system" {
		return NewSystemRequest(plugin), nil
	}
	return NewVersionRequest(plugin, token), nil
}

// Version renders the request's version token. Requests order by this value.
func (r ToolVersionRequest) Version() string {
	switch r.Kind {
	case KindPrefix:
		return "prefix-" + r.Value
	case KindRef:
		return "ref-" + r.Value
	case KindPath:
		return "path-" + r.Value
	case KindSystem:
		return "system"
	default:
		return r.Value
	}
}

// Pathname is the path-safe encoding of the request used to derive install,
// cache, and download directories. Two requests with the same pathname share
// an install location.
func (r ToolVersionRequest) Pathname() string {
	switch r.Kind {
	case KindPrefix:
		return "prefix-" + r.Value
	case KindRef:
		return "ref-" + r.Value
	case KindPath:
		return "path-" + PathHash(r.Value)
	case KindSystem:
		return "system"
	default:
		return r.Value
	}
}

func (r ToolVersionRequest) String() string {
	return r.Plugin + "@" + r.Version()
}

// PathHash derives a short stable identifier from a filesystem path, used
// wherever a path becomes part of a file or directory name.
func PathHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}
