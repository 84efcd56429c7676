package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// presetEvalTimeout bounds a single gating-predicate evaluation.
const presetEvalTimeout = 2 * time.Second

// Preset is a named bundle of built-in tool IDs, optionally gated by a CEL
// predicate over the session's selection headers. A preset with no When
// expression always applies once named by a bouquet/mix header; one with
// a When expression only contributes its tools when the predicate
// evaluates true, letting an operator scope a preset to, say, sessions
// that also requested a particular mix entry.
type Preset struct {
	Name    string
	ToolIDs []string
	// When is a CEL boolean expression evaluated against the preset
	// environment (variables: bouquet, mix, gradio; see PresetEnv).
	// Empty means "always applies".
	When string
}

// Presets is the static table of known bouquet/mix presets, compiled once
// at construction and evaluated per-resolution via the shared cel.Env.
type Presets struct {
	env     *cel.Env
	entries map[string]compiledPreset
}

type compiledPreset struct {
	preset  Preset
	program cel.Program // nil when When is empty
}

// NewPresets compiles every preset's gating predicate against the
// selection CEL environment (PresetEnv) and returns a ready PresetResolver.
func NewPresets(presets []Preset) (*Presets, error) {
	env, err := PresetEnv()
	if err != nil {
		return nil, fmt.Errorf("selection: building CEL environment: %w", err)
	}

	entries := make(map[string]compiledPreset, len(presets))
	for _, p := range presets {
		cp := compiledPreset{preset: p}
		if p.When != "" {
			prg, err := compile(env, p.When)
			if err != nil {
				return nil, fmt.Errorf("selection: preset %q: %w", p.Name, err)
			}
			cp.program = prg
		}
		entries[p.Name] = cp
	}
	return &Presets{env: env, entries: entries}, nil
}

// PresetEnv builds the CEL environment presets are compiled and evaluated
// against: the three session selection headers, exposed as CEL variables.
func PresetEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("bouquet", cel.StringType),
		cel.Variable("mix", cel.ListType(cel.StringType)),
		cel.Variable("gradio", cel.ListType(cel.StringType)),
	)
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling %q: %w", expr, issues.Err())
	}
	return env.Program(ast, cel.EvalOptions(cel.OptOptimize))
}

// Resolve implements PresetResolver. evalCtx is expected to carry
// "bouquet" (string), "mix" ([]string) and "gradio" ([]string) keys built
// from the session's Headers; missing keys default to the zero value.
func (p *Presets) Resolve(evalCtx map[string]any, name string) ([]string, bool) {
	entry, ok := p.entries[name]
	if !ok {
		return nil, false
	}
	if entry.program == nil {
		return entry.preset.ToolIDs, true
	}

	activation := map[string]any{
		"bouquet": stringOr(evalCtx["bouquet"]),
		"mix":     stringsOr(evalCtx["mix"]),
		"gradio":  stringsOr(evalCtx["gradio"]),
	}
	ctx, cancel := context.WithTimeout(context.Background(), presetEvalTimeout)
	defer cancel()

	out, _, err := entry.program.ContextEval(ctx, activation)
	if err != nil {
		return nil, false
	}
	matched, ok := out.Value().(bool)
	if !ok || !matched {
		return nil, false
	}
	return entry.preset.ToolIDs, true
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

func stringsOr(v any) []string {
	s, _ := v.([]string)
	return s
}

// EvalContext builds the CEL activation map for one session's Headers, for
// passing to Strategy.Resolve.
func EvalContext(h Headers) map[string]any {
	return map[string]any{
		"bouquet": h.Bouquet,
		"mix":     h.Mix,
		"gradio":  h.Gradio,
	}
}
