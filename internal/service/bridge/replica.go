package bridge

import (
	"regexp"
	"strings"
)

// gradioAPIPattern matches "https://<host>/gradio_api<rest>" where <rest>
// is everything up to the next whitespace or quote, so the rewrite only
// touches the path+query of a matched URL and leaves surrounding text
// alone.
var gradioAPIPattern = regexp.MustCompile(`https://([^/\s"']+)/gradio_api([^\s"']*)`)

// ExtractReplicaID pulls the replica identifier from a captured
// X-Proxied-Replica header value of the shape "<x>-<replica_id>" (split on
// "-", take the last non-empty segment). Returns "" if the header has no
// hyphen-separated replica segment.
func ExtractReplicaID(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Split(header, "-")
	if len(parts) < 2 {
		return ""
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

// RewriteReplicaURLs rewrites every "https://<host>/gradio_api<rest>"
// occurrence in text to "https://<host>/--replicas/<replicaID>/gradio_api
// <rest>", pinning follow-up requests (e.g. file downloads) to the replica
// that produced the result. Idempotent: rewriting already-rewritten text
// is a no-op because the pattern requires "/gradio_api" to immediately
// follow the host, which is no longer true once "--replicas/<id>" has been
// inserted.
func RewriteReplicaURLs(text, replicaID string) string {
	if replicaID == "" {
		return text
	}
	return gradioAPIPattern.ReplaceAllString(text, "https://${1}/--replicas/"+replicaID+"/gradio_api${2}")
}
