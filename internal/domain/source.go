package domain

type ToolSourceKind string

const (
	SourceArgument     ToolSourceKind = "argument"
	SourceToolVersions ToolSourceKind = "tool-versions"
	SourceConfigFile   ToolSourceKind = "config-file"
	SourceEnvironment  ToolSourceKind = "environment"
	SourceLegacyFile   ToolSourceKind = "legacy-file"
)

// ToolSource identifies where a version requirement came from. Path is set
// for file-backed sources.
type ToolSource struct {
	Kind ToolSourceKind
	Path string
}

func (s ToolSource) String() string {
	if s.Path != "" {
		return s.Path
	}
	return string(s.Kind)
}
