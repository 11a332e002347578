package toolset

import (
	"context"

	"go.uber.org/zap"

	"toolv/internal/domain"
)

// RequestedVersion pairs one request with its user-supplied options.
type RequestedVersion struct {
	Request domain.ToolVersionRequest
	Opts    *domain.ToolVersionOptions
}

// ToolVersionList is every wanted version of one tool from one source, plus
// the subset that resolved. A list never fails as a whole: requests that
// cannot resolve are logged and skipped so their siblings still materialize.
type ToolVersionList struct {
	PluginName string
	Source     domain.ToolSource
	Requests   []RequestedVersion
	Versions   []domain.ToolVersion
}

func NewToolVersionList(plugin string, source domain.ToolSource) *ToolVersionList {
	return &ToolVersionList{PluginName: plugin, Source: source}
}

// AddRequest appends a request; declaration order is preserved through
// resolution.
func (l *ToolVersionList) AddRequest(req domain.ToolVersionRequest, opts *domain.ToolVersionOptions) {
	l.Requests = append(l.Requests, RequestedVersion{Request: req, Opts: opts})
}

// ResolveAll resolves every request in order. A plugin that is absent or not
// installed leaves the list unresolved without error; the caller decides
// whether an empty result matters.
func (l *ToolVersionList) ResolveAll(ctx context.Context, r *Resolver, latest bool) {
	l.Versions = nil
	plugin, ok := r.Plugin(l.PluginName)
	if !ok || !plugin.IsInstalled() {
		r.logger.Debug("plugin is not installed", zap.String("plugin", l.PluginName))
		return
	}
	for _, rv := range l.Requests {
		tv, err := r.Resolve(ctx, rv.Request, rv.Opts, latest)
		if err != nil {
			r.logger.Warn("failed to resolve tool version",
				zap.String("request", rv.Request.String()),
				zap.String("source", l.Source.String()),
				zap.Error(err))
			continue
		}
		l.Versions = append(l.Versions, tv)
	}
}
