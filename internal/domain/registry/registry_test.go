package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/domain/space"
	"github.com/spacebridge/gateway/internal/domain/tool"
	"github.com/spacebridge/gateway/internal/port/inbound"
	"github.com/spacebridge/gateway/internal/port/outbound"
	"github.com/spacebridge/gateway/internal/service/bridge"
)

type stubHandler struct {
	result inbound.Result
	err    error
}

func (s stubHandler) Invoke(ctx context.Context, bearerToken string, info *session.ClientInfo, args map[string]any) (inbound.Result, error) {
	return s.result, s.err
}

type stubResolver struct {
	metadata map[space.Ref]space.Metadata
	tools    map[space.Ref][]tool.Descriptor
	err      error
}

func (s *stubResolver) ResolveMetadata(ctx context.Context, ref space.Ref, token string) (space.Metadata, error) {
	if s.err != nil {
		return space.Metadata{}, s.err
	}
	md, ok := s.metadata[ref]
	if !ok {
		return space.Metadata{}, errors.New("not found")
	}
	return md, nil
}

func (s *stubResolver) ResolveTools(ctx context.Context, md space.Metadata, token string) ([]tool.Descriptor, error) {
	return s.tools[md.Ref], nil
}

type stubBridge struct {
	result outbound.Result
	err    error
}

func (s stubBridge) Invoke(ctx context.Context, inv *session.Invocation, subdomain, toolName string, args map[string]any, token string, send bridge.SendFunc) (outbound.Result, error) {
	return s.result, s.err
}

func TestBuildCatalogueBuiltins(t *testing.T) {
	reg := New([]Builtin{
		{ID: "hub_search", Description: "search tool", InputSchema: map[string]any{}},
	}, &stubResolver{}, stubBridge{}, nil)

	sess := session.New(session.HeaderOverrides{}, "")
	reg.BuildCatalogue(context.Background(), sess, []string{"hub_search"}, nil)

	tools := sess.List()
	if len(tools) != 1 || tools[0].OutwardName != "hub_search" {
		t.Fatalf("got %+v", tools)
	}
	if !tools[0].BuiltIn {
		t.Fatalf("expected builtin flag set")
	}
}

func TestBuildCatalogueDynamicOutwardNames(t *testing.T) {
	ref := space.Ref("owner/space")
	md := space.Metadata{Ref: ref, Subdomain: "owner-space", SDK: "gradio"}
	resolver := &stubResolver{
		metadata: map[space.Ref]space.Metadata{ref: md},
		tools:    map[space.Ref][]tool.Descriptor{ref: {{Name: "predict", InputSchema: map[string]any{}}}},
	}
	reg := New(nil, resolver, stubBridge{}, nil)

	sess := session.New(session.HeaderOverrides{}, "")
	reg.BuildCatalogue(context.Background(), sess, nil, []Endpoint{{Index: 1, Ref: ref}})

	if _, ok := sess.Get("gr1_predict"); !ok {
		t.Fatalf("expected gr1_predict in catalogue, got %+v", sess.List())
	}
	invoke, ok := sess.Get("gr1_invoke")
	if !ok || !invoke.Convenience {
		t.Fatalf("expected gr1_invoke convenience entry, got %+v", sess.List())
	}
}

func TestBuildCataloguePrivateMarker(t *testing.T) {
	if got := OutwardName(2, true, "generate"); got != "gr2p_generate" {
		t.Fatalf("got %q, want gr2p_generate", got)
	}
	if got := OutwardName(2, false, "generate"); got != "gr2_generate" {
		t.Fatalf("got %q, want gr2_generate", got)
	}
}

func TestEndpointFailureIsolatedFromCatalogue(t *testing.T) {
	resolver := &stubResolver{err: errors.New("timeout")}
	reg := New([]Builtin{{ID: "ok_tool", InputSchema: map[string]any{}}}, resolver, stubBridge{}, nil)

	sess := session.New(session.HeaderOverrides{}, "")
	reg.BuildCatalogue(context.Background(), sess, []string{"ok_tool"}, []Endpoint{{Index: 1, Ref: "owner/broken"}})

	tools := sess.List()
	if len(tools) != 1 || tools[0].OutwardName != "ok_tool" {
		t.Fatalf("expected the builtin to survive a broken endpoint, got %+v", tools)
	}
}

func TestInvokeUnknownToolNotFound(t *testing.T) {
	reg := New(nil, &stubResolver{}, stubBridge{}, nil)
	sess := session.New(session.HeaderOverrides{}, "")
	inv := session.NewInvocation(context.Background(), sess, "missing", nil, nil)

	_, err := reg.Invoke(context.Background(), sess, inv, "missing", nil, nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestInvokeDisabledToolNotFound(t *testing.T) {
	reg := New([]Builtin{{ID: "t", Handler: stubHandler{}}}, &stubResolver{}, stubBridge{}, nil)
	sess := session.New(session.HeaderOverrides{}, "")
	reg.BuildCatalogue(context.Background(), sess, []string{"t"}, nil)
	sess.SetEnabled("t", false)

	inv := session.NewInvocation(context.Background(), sess, "t", nil, nil)
	_, err := reg.Invoke(context.Background(), sess, inv, "t", nil, nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestInvokeBuiltinDispatch(t *testing.T) {
	want := inbound.Result{Content: []inbound.ContentItem{{Type: "text", Text: "hi"}}}
	reg := New([]Builtin{{ID: "t", Handler: stubHandler{result: want}}}, &stubResolver{}, stubBridge{}, nil)
	sess := session.New(session.HeaderOverrides{}, "")
	reg.BuildCatalogue(context.Background(), sess, []string{"t"}, nil)

	inv := session.NewInvocation(context.Background(), sess, "t", nil, nil)
	got, err := reg.Invoke(context.Background(), sess, inv, "t", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Content) != 1 || got.Content[0].Text != "hi" {
		t.Fatalf("got %+v", got)
	}
}

func newDynamicRegistry(t *testing.T, descriptors []tool.Descriptor, br Bridge) (*Registry, *session.Context) {
	t.Helper()
	ref := space.Ref("owner/space")
	md := space.Metadata{Ref: ref, Subdomain: "owner-space", SDK: "gradio"}
	resolver := &stubResolver{
		metadata: map[space.Ref]space.Metadata{ref: md},
		tools:    map[space.Ref][]tool.Descriptor{ref: descriptors},
	}
	reg := New(nil, resolver, br, nil)
	sess := session.New(session.HeaderOverrides{}, "")
	reg.BuildCatalogue(context.Background(), sess, nil, []Endpoint{{Index: 1, Ref: ref}})
	return reg, sess
}

func TestInvokeConvenienceDispatchesSimpleTool(t *testing.T) {
	br := stubBridge{result: outbound.Result{Content: []outbound.ContentItem{{Type: "text", Text: "done"}}}}
	reg, sess := newDynamicRegistry(t, []tool.Descriptor{{
		Name:       "predict",
		Complexity: tool.ComplexitySimple,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"prompt": map[string]any{"type": "string"}},
		},
	}}, br)

	inv := session.NewInvocation(context.Background(), sess, "gr1_invoke", nil, nil)
	got, err := reg.Invoke(context.Background(), sess, inv, "gr1_invoke", map[string]any{
		"tool_name":      "predict",
		"arguments_json": `{"prompt": "a cat"}`,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsError {
		t.Fatalf("got error result: %+v", got)
	}
	if got.Content[0].Text != "done" {
		t.Fatalf("got %+v", got)
	}
}

func TestInvokeConvenienceRejectsInvalidJSON(t *testing.T) {
	reg, sess := newDynamicRegistry(t, []tool.Descriptor{{
		Name: "predict", Complexity: tool.ComplexitySimple, InputSchema: map[string]any{},
	}}, stubBridge{})

	inv := session.NewInvocation(context.Background(), sess, "gr1_invoke", nil, nil)
	got, err := reg.Invoke(context.Background(), sess, inv, "gr1_invoke", map[string]any{
		"tool_name":      "predict",
		"arguments_json": `{not json`,
	}, nil)
	if err != nil {
		t.Fatalf("invalid JSON must surface as a structured error result, not a protocol error: %v", err)
	}
	if !got.IsError {
		t.Fatal("expected IsError=true")
	}
	if len(got.Content) == 0 || !strings.Contains(got.Content[0].Text, "arguments_json") {
		t.Fatalf("expected an error message with a usage example, got %+v", got)
	}
}

func TestInvokeConvenienceRefusesComplexSchema(t *testing.T) {
	reg, sess := newDynamicRegistry(t, []tool.Descriptor{{
		Name:       "compose",
		Complexity: tool.ComplexityComplex,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"layers": map[string]any{"type": "object"}},
		},
	}}, stubBridge{})

	inv := session.NewInvocation(context.Background(), sess, "gr1_invoke", nil, nil)
	got, err := reg.Invoke(context.Background(), sess, inv, "gr1_invoke", map[string]any{
		"tool_name":      "compose",
		"arguments_json": `{"layers": {}}`,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !got.IsError {
		t.Fatal("expected IsError=true for a complex-schema target")
	}
	if !strings.Contains(got.Content[0].Text, "gr1_compose") {
		t.Fatalf("error must point the caller at the passthrough tool, got %q", got.Content[0].Text)
	}
}

func TestInvokeConvenienceUnknownTargetNotFound(t *testing.T) {
	reg, sess := newDynamicRegistry(t, []tool.Descriptor{{
		Name: "predict", Complexity: tool.ComplexitySimple, InputSchema: map[string]any{},
	}}, stubBridge{})

	inv := session.NewInvocation(context.Background(), sess, "gr1_invoke", nil, nil)
	_, err := reg.Invoke(context.Background(), sess, inv, "gr1_invoke", map[string]any{
		"tool_name":      "no_such_tool",
		"arguments_json": `{}`,
	}, nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestInvokeDynamicAttachesCapturedHeaders(t *testing.T) {
	ref := space.Ref("owner/space")
	md := space.Metadata{Ref: ref, Subdomain: "owner-space", SDK: "gradio"}
	resolver := &stubResolver{
		metadata: map[space.Ref]space.Metadata{ref: md},
		tools:    map[space.Ref][]tool.Descriptor{ref: {{Name: "predict", InputSchema: map[string]any{}}}},
	}
	br := stubBridge{result: outbound.Result{
		Content:         []outbound.ContentItem{{Type: "text", Text: "done"}},
		CapturedHeaders: map[string]string{"X-Proxied-Replica": "a-b"},
	}}
	reg := New(nil, resolver, br, nil)

	sess := session.New(session.HeaderOverrides{}, "")
	reg.BuildCatalogue(context.Background(), sess, nil, []Endpoint{{Index: 1, Ref: ref}})

	inv := session.NewInvocation(context.Background(), sess, "gr1_predict", nil, nil)
	got, err := reg.Invoke(context.Background(), sess, inv, "gr1_predict", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata == nil {
		t.Fatalf("expected responseHeaders metadata to be attached")
	}
}
