// Package proxy wires the session registry, tool-selection strategy, and
// legacy request rewriter into the inbound.SessionService transport
// adapters drive: the orchestration layer tying initialize,
// tools/list, and tools/call to the domain packages that implement each
// step.
package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spacebridge/gateway/internal/domain/legacy"
	"github.com/spacebridge/gateway/internal/domain/registry"
	"github.com/spacebridge/gateway/internal/domain/selection"
	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/domain/space"
	"github.com/spacebridge/gateway/internal/port/inbound"
	"github.com/spacebridge/gateway/internal/service/bridge"
)

// SettingsLookup resolves a session's stored tool selection, fetched
// from the service catalogue or supplied by the caller. nil means no
// settings are ever available and the strategy falls through to its
// static fallback.
type SettingsLookup interface {
	Lookup(ctx context.Context, bearerToken string) (*selection.Settings, error)
}

// InitRequest is everything a transport adapter extracts from an
// initialize call to start a new session.
type InitRequest struct {
	BearerToken string
	ClientInfo  *session.ClientInfo
	Headers     selection.Headers
}

// Service implements inbound.SessionService, orchestrating the
// registry, selection strategy, and legacy rewriter behind one session
// table.
type Service struct {
	sessions *session.Manager
	registry *registry.Registry
	strategy *selection.Strategy
	settings SettingsLookup
	cfg      Config
	logger   *slog.Logger
}

// Config carries the selection defaults sourced from internal/config's
// SelectionConfig.
type Config struct {
	SearchEnablesFetch        bool
	DocsSearchID, DocsFetchID string
	DefaultBearerToken        string
}

// New builds a Service. settings may be nil (no stored-settings source
// configured).
func New(sessions *session.Manager, reg *registry.Registry, strategy *selection.Strategy, settings SettingsLookup, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sessions: sessions, registry: reg, strategy: strategy, settings: settings, cfg: cfg, logger: logger}
}

// Initialize creates a new session, resolves its initial tool
// selection, and builds its catalogue. It returns the new session's ID.
func (s *Service) Initialize(ctx context.Context, req InitRequest) (string, error) {
	bearerToken := req.BearerToken
	if bearerToken == "" {
		bearerToken = s.cfg.DefaultBearerToken
	}

	overrides := session.HeaderOverrides{
		Bouquet: req.Headers.Bouquet,
		Mix:     req.Headers.Mix,
		Gradio:  req.Headers.Gradio,
	}
	sess := s.sessions.Create(overrides, bearerToken)
	sess.ClientInfo = req.ClientInfo

	if err := s.refreshCatalogue(ctx, sess, req.Headers); err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (s *Service) refreshCatalogue(ctx context.Context, sess *session.Context, headers selection.Headers) error {
	var settings *selection.Settings
	if s.settings != nil {
		resolved, err := s.settings.Lookup(ctx, sess.BearerToken)
		if err != nil {
			s.logger.Warn("proxy: settings lookup failed, falling back to static tool set", "error", err)
		} else {
			settings = resolved
		}
	}

	in := selection.Input{
		Headers:            headers,
		Settings:           settings,
		KnownBuiltins:      s.registry.KnownBuiltinIDs(),
		SearchEnablesFetch: s.cfg.SearchEnablesFetch,
		DocsSearchID:       s.cfg.DocsSearchID,
		DocsFetchID:        s.cfg.DocsFetchID,
	}
	result := s.strategy.Resolve(in, selection.EvalContext(headers))

	endpoints := make([]registry.Endpoint, 0, len(result.GradioRefs))
	for i, raw := range result.GradioRefs {
		ref, err := space.ParseRef(raw)
		if err != nil {
			s.logger.Warn("proxy: dropping invalid gradio ref", "ref", raw, "error", err)
			continue
		}
		endpoints = append(endpoints, registry.Endpoint{Index: i + 1, Ref: ref})
	}

	s.registry.BuildCatalogue(ctx, sess, result.ToolIDs, endpoints)
	return nil
}

// ListTools implements inbound.SessionService.
func (s *Service) ListTools(ctx context.Context, sessionID string) ([]inbound.ToolSummary, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}

	entries := sess.List()
	out := make([]inbound.ToolSummary, 0, len(entries))
	for _, t := range entries {
		out = append(out, inbound.ToolSummary{
			OutwardName: t.OutwardName,
			Description: t.Description,
			InputSchema: t.Schema,
		})
	}
	return out, nil
}

// Subscribe returns the session's catalogue-change channel. The transport
// forwards each event as a notifications/tools/list_changed frame; the
// channel closes when the session is torn down.
func (s *Service) Subscribe(sessionID string) (<-chan session.ChangeEvent, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	return sess.Listener(), nil
}

// CallTool implements inbound.SessionService. It applies the legacy
// rewriter to the requested name/arguments before dispatch (the rewriter
// runs at ingress, ahead of catalogue lookup, so a legacy alias resolves
// to its canonical outward name even if the session's catalogue never
// enabled the alias itself).
func (s *Service) CallTool(ctx context.Context, req inbound.CallRequest) (inbound.Result, error) {
	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		return inbound.Result{}, fmt.Errorf("proxy: %w", err)
	}

	rewritten, report := legacy.Rewrite(legacy.Request{Name: req.OutwardName, Arguments: req.Arguments})
	if report != nil {
		s.logger.Debug("legacy tool name rewritten", "from", report.LegacyName, "to", report.CanonicalName)
	}

	inv := session.NewInvocation(ctx, sess, rewritten.Name, rewritten.Arguments, req.ProgressToken)
	defer inv.Finish()

	if req.CancelSignal != nil {
		go func() {
			select {
			case <-req.CancelSignal:
				inv.Cancel()
			case <-inv.Done():
			}
		}()
	}

	var sendProgress bridge.SendFunc
	if req.OnProgress != nil {
		sendProgress = bridge.SendFunc(req.OnProgress)
	}

	return s.registry.Invoke(inv.Context(), sess, inv, rewritten.Name, rewritten.Arguments, sendProgress)
}

// Close implements inbound.SessionService.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return nil
}
