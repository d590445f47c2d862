package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/kv"
	"github.com/roach88/erpstore/internal/ledger"
	"github.com/roach88/erpstore/internal/logger"
	"github.com/roach88/erpstore/internal/store"
)

// Start is the fixed clock origin of every scenario run.
var Start = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

// Harness executes one scenario against a fresh store.
type Harness struct {
	store     *store.Manager
	ledger    *ledger.Ledger
	inventory *ledger.Inventory
	clock     *ids.FakeClock
	actor     ledger.Actor
	vars      map[string]string
	seq       int64
	log       *logger.Logger
}

// Options configures Run.
type Options struct {
	Logger *logger.Logger
}

// Run executes scenario and evaluates its assertions. The returned error
// reports harness failures (a broken setup step, an unknown action); a
// scenario whose expectations do not hold returns a Result with Pass=false.
func Run(scenario *Scenario, opts ...Options) (*Result, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	log := o.Logger
	if log == nil {
		log = logger.Nop()
	}

	clock := ids.NewFakeClock(Start)
	mgr := store.New(kv.NewMemory(), store.Options{
		Clock:  clock.Now,
		IDs:    ids.NewSequence("snap"),
		Logger: log,
	})
	ctx := context.Background()
	if _, err := mgr.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	l := ledger.New(mgr, ledger.Options{IDs: ids.NewSequence("id"), Clock: clock.Now, Logger: log})
	actor := ledger.System
	if scenario.Actor != "" {
		actor = ledger.Actor{ID: scenario.Actor}
	}
	h := &Harness{
		store:     mgr,
		ledger:    l,
		inventory: l.NewInventory(),
		clock:     clock,
		actor:     actor,
		vars:      map[string]string{},
		log:       log.With("harness"),
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	db, err := mgr.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	state, err := canonical.ToValue(db)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.State, _ = state.(map[string]any)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep, result *Result) error {
	for i, step := range setup {
		outcome, value, err := h.invoke(ctx, step.Action, step.Args, step.SaveAs, result)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if outcome != CaseSuccess {
			return fmt.Errorf("setup step %d (%s): %s: %v", i, step.Action, outcome, value)
		}
	}
	return nil
}

func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		outcome, value, err := h.invoke(ctx, step.Invoke, step.Args, step.SaveAs, result)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		want := CaseSuccess
		if step.Expect != nil {
			want = step.Expect.Case
		}
		if outcome != want {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s (%v)", i, step.Invoke, want, outcome, value))
			continue
		}
		if step.Expect != nil && len(step.Expect.Result) > 0 {
			if !matchArgs(value, step.Expect.Result) {
				result.AddError(fmt.Sprintf("flow[%d] %s: result %v does not match %v", i, step.Invoke, value, step.Expect.Result))
			}
		}
		h.log.Debug().Int("step", i).Str("action", step.Invoke).Str("case", outcome).Msg("flow step completed")
	}
	return nil
}

// invoke runs one action and traces it. The outcome is CaseSuccess or the
// ledger error code; for failures value holds the error message.
func (h *Harness) invoke(ctx context.Context, action string, rawArgs map[string]any, saveAs string, result *Result) (string, any, error) {
	fn, ok := actions[action]
	if !ok {
		return "", nil, fmt.Errorf("unknown action %q", action)
	}
	args, err := h.resolve(rawArgs)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", action, err)
	}

	h.seq++
	result.AddInvocationTrace(action, args, h.seq)
	h.clock.Advance(time.Second)

	out, callErr := fn(ctx, h, args)
	h.seq++
	if callErr != nil {
		code := string(ledger.CodeOf(callErr))
		if code == "" {
			return "", nil, fmt.Errorf("%s: %w", action, callErr)
		}
		result.AddCompletionTrace(code, callErr.Error(), h.seq)
		return code, callErr.Error(), nil
	}

	value, err := generic(out)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", action, err)
	}
	result.AddCompletionTrace(CaseSuccess, value, h.seq)

	if saveAs != "" {
		id := savedID(value)
		if id == "" {
			return "", nil, fmt.Errorf("%s: save_as %q: result has no id", action, saveAs)
		}
		h.vars[saveAs] = id
	}
	return CaseSuccess, value, nil
}

// generic converts a result to the decoded JSON form used in traces.
func generic(v any) (any, error) {
	data, err := canonical.Marshal(v)
	if err != nil {
		return nil, err
	}
	return canonical.Decode(data)
}

func savedID(value any) string {
	obj, _ := value.(map[string]any)
	for _, key := range []string{"id", "cod"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var errUnbound = errors.New("unbound variable")

// resolve substitutes "$name" strings with bound ids, recursively.
func (h *Harness) resolve(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	v, err := h.resolveValue(args)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (h *Harness) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(val, "$"); ok && name != "" {
			bound, ok := h.vars[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", errUnbound, val)
			}
			return bound, nil
		}
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := h.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := h.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}
	return v, nil
}
