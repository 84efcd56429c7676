// Package selection implements the tool selection strategy: resolving the active built-in tool ID set for a session from
// request headers, stored user settings, and static presets, then
// applying the post-resolution transforms (legacy normalization,
// search-enables-fetch, gradio endpoint merge).
package selection

import (
	"github.com/spacebridge/gateway/internal/domain/legacy"
)

// SettingsSource records where user settings came from, for observability
// only; it never changes resolution behaviour.
type SettingsSource string

const (
	SourceNone     SettingsSource = "none"
	SourceExternal SettingsSource = "external" // fetched from the service catalogue
	SourceInline   SettingsSource = "inline"   // caller-supplied bundle
)

// Headers carries the three session-level selection headers.
type Headers struct {
	Bouquet string
	Mix     []string
	Gradio  []string
}

// Settings is the stored (or caller-supplied) per-user tool selection.
type Settings struct {
	ToolIDs []string
	Source  SettingsSource
}

// Input is everything the strategy needs to resolve one session's active
// tool set.
type Input struct {
	Headers            Headers
	Settings           *Settings // nil means "no settings available"
	KnownBuiltins      []string  // fallback universe when no settings resolve
	SearchEnablesFetch bool
	DocsSearchID       string
	DocsFetchID        string
}

// Result is the resolved selection: the final tool ID set (post-transform),
// the additional gradio endpoints to merge as dynamic spaces, and which
// branch of the precedence ladder fired (for observability/tests).
type Result struct {
	ToolIDs        []string
	GradioRefs     []string
	Branch         string // "bouquet" | "mix" | "settings" | "fallback"
	SettingsSource SettingsSource
}

// PresetResolver looks up a named preset's tool ID list. Bouquets and
// mixes both resolve through this interface; the concrete implementation
// (Presets, below) additionally gates each preset on a CEL predicate.
type PresetResolver interface {
	Resolve(evalCtx map[string]any, name string) ([]string, bool)
}

// Strategy resolves sessions' active tool sets.
type Strategy struct {
	presets PresetResolver
}

// New builds a Strategy backed by the given preset resolver.
func New(presets PresetResolver) *Strategy {
	return &Strategy{presets: presets}
}

// Resolve implements the full precedence ladder and post-resolution
// transforms. evalCtx supplies the variables available to
// each preset's CEL gating predicate (typically the request headers).
func (s *Strategy) Resolve(in Input, evalCtx map[string]any) Result {
	var res Result

	switch {
	case in.Headers.Bouquet != "":
		if ids, ok := s.presets.Resolve(evalCtx, in.Headers.Bouquet); ok {
			res = Result{ToolIDs: ids, Branch: "bouquet"}
			break
		}
		fallthrough
	default:
		res = s.resolveMixOrSettings(in, evalCtx)
	}

	res.ToolIDs = legacy.NormalizeIDs(res.ToolIDs)

	if in.SearchEnablesFetch && in.DocsSearchID != "" && in.DocsFetchID != "" {
		res.ToolIDs = searchEnablesFetch(res.ToolIDs, in.DocsSearchID, in.DocsFetchID)
	}

	res.GradioRefs = append(res.GradioRefs, in.Headers.Gradio...)
	return res
}

func (s *Strategy) resolveMixOrSettings(in Input, evalCtx map[string]any) Result {
	if len(in.Headers.Mix) > 0 && in.Settings != nil {
		union := make([]string, 0, len(in.Settings.ToolIDs))
		seen := make(map[string]bool)
		for _, id := range in.Settings.ToolIDs {
			if !seen[id] {
				seen[id] = true
				union = append(union, id)
			}
		}
		for _, name := range in.Headers.Mix {
			ids, ok := s.presets.Resolve(evalCtx, name)
			if !ok {
				continue
			}
			for _, id := range ids {
				if !seen[id] {
					seen[id] = true
					union = append(union, id)
				}
			}
		}
		return Result{ToolIDs: union, Branch: "mix", SettingsSource: in.Settings.Source}
	}

	if in.Settings != nil {
		return Result{ToolIDs: in.Settings.ToolIDs, Branch: "settings", SettingsSource: in.Settings.Source}
	}

	return Result{ToolIDs: append([]string(nil), in.KnownBuiltins...), Branch: "fallback"}
}

func searchEnablesFetch(ids []string, searchID, fetchID string) []string {
	hasSearch, hasFetch := false, false
	for _, id := range ids {
		if id == searchID {
			hasSearch = true
		}
		if id == fetchID {
			hasFetch = true
		}
	}
	if hasSearch && !hasFetch {
		return append(ids, fetchID)
	}
	return ids
}
