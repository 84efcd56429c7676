// Package legacy implements the ingress request rewriter: a pure
// function applied to every incoming tools/call request body before
// dispatch, mapping deprecated tool names and arguments into their
// canonical form. The rewriter never touches requests it doesn't
// recognise, and is idempotent by construction (rewritten requests carry
// the canonical name, which never matches a legacy alias again).
package legacy

// Canonical tool names the rewriter targets. These match the unified
// built-in tool IDs advertised by the session registry.
const (
	CanonicalSearch  = "hub_search"
	CanonicalDetails = "hub_repo_details"
)

// Request is the ingress shape of a tools/call request, pre-dispatch.
type Request struct {
	Name      string
	Arguments map[string]any
}

// Report records a single legacy-name rewrite for observability.
type Report struct {
	LegacyName    string
	CanonicalName string
}

// The *Aliases sets below each list the recognised legacy, hyphenated and
// hf_-prefixed spellings of one deprecated tool; the set a name falls in
// decides how it is rewritten.
var modelSearchAliases = map[string]bool{
	"model_search":    true,
	"model-search":    true,
	"hf_model_search": true,
}

var datasetSearchAliases = map[string]bool{
	"dataset_search":    true,
	"dataset-search":    true,
	"hf_dataset_search": true,
}

var repoSearchAliases = map[string]bool{
	"repo_search":    true,
	"repo-search":    true,
	"hf_repo_search": true,
}

var modelDetailAliases = map[string]bool{
	"model_detail":    true,
	"model-detail":    true,
	"hf_model_detail": true,
}

var datasetDetailAliases = map[string]bool{
	"dataset_detail":    true,
	"dataset-detail":    true,
	"hf_dataset_detail": true,
}

// Rewrite maps one request's legacy name and arguments to canonical
// form. It returns a new Request (the input
// is never mutated) and, when a legacy name was recognised, a non-nil
// Report. A request whose name matches none of the legacy spellings is
// returned unchanged (same Arguments map, not copied).
func Rewrite(req Request) (Request, *Report) {
	switch {
	case modelSearchAliases[req.Name]:
		return rewriteSearch(req, CanonicalSearch, "model", "task", "library"), &Report{req.Name, CanonicalSearch}
	case datasetSearchAliases[req.Name]:
		return rewriteSearch(req, CanonicalSearch, "dataset", "tags"), &Report{req.Name, CanonicalSearch}
	case repoSearchAliases[req.Name]:
		out := req
		out.Name = CanonicalSearch
		return out, &Report{req.Name, CanonicalSearch}
	case modelDetailAliases[req.Name]:
		out := req
		out.Name = CanonicalDetails
		return out, &Report{req.Name, CanonicalDetails}
	case datasetDetailAliases[req.Name]:
		out := req
		out.Name = CanonicalDetails
		return out, &Report{req.Name, CanonicalDetails}
	default:
		return req, nil
	}
}

// rewriteSearch builds the canonical hub_search request for a legacy
// model_search/dataset_search call: sets repo_types, and merges every
// named legacy field (each a string or []string argument) into filters,
// deduplicated, then removes the originals.
func rewriteSearch(req Request, canonical, repoType string, mergeFields ...string) Request {
	args := make(map[string]any, len(req.Arguments)+2)
	for k, v := range req.Arguments {
		args[k] = v
	}

	filters := toStrings(args["filters"])
	seen := make(map[string]bool, len(filters))
	merged := make([]string, 0, len(filters)+len(mergeFields))
	for _, f := range filters {
		if !seen[f] {
			seen[f] = true
			merged = append(merged, f)
		}
	}

	for _, field := range mergeFields {
		raw, ok := args[field]
		delete(args, field)
		if !ok {
			continue
		}
		for _, v := range toStrings(raw) {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			merged = append(merged, v)
		}
	}

	args["repo_types"] = []string{repoType}
	args["filters"] = merged

	return Request{Name: canonical, Arguments: args}
}

// toStrings normalises a legacy argument value (string or []string, as
// decoded from JSON the value may also arrive as []any) into a string
// slice.
func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// NormalizeIDs collapses a set of tool IDs through the same alias
// mapping: non-legacy IDs keep their first-occurrence order, every legacy
// search/detail ID collapses onto its canonical counterpart, and the
// (de-duplicated) canonical replacements are appended after the
// survivors.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	var replaced []string
	for _, id := range ids {
		canonical := canonicalID(id)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		if canonical != id {
			replaced = append(replaced, canonical)
			continue
		}
		out = append(out, canonical)
	}
	return append(out, replaced...)
}

func canonicalID(id string) string {
	switch {
	case modelSearchAliases[id], datasetSearchAliases[id], repoSearchAliases[id]:
		return CanonicalSearch
	case modelDetailAliases[id], datasetDetailAliases[id]:
		return CanonicalDetails
	default:
		return id
	}
}
