package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/babelcloud/voicepilot/internal/browser/driver"
	model "github.com/babelcloud/voicepilot/pkg/agent"
)

const (
	defaultExtractInstruction = "Extract all visible text and data from the page"
	defaultObserveInstruction = "Observe the current page and describe what you see"
	defaultWaitMillis         = 1000

	searchInputSelector  = `input[type="search"], input[name*="search" i], input[placeholder*="search" i]`
	searchSubmitSelector = `button[type="submit"], input[type="submit"], button[aria-label*="search" i]`
)

// defaultExtractSchema is used when the intent carries no parameters.schema.
func defaultExtractSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string"},
			"links":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"images":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

type step func(ctx context.Context) error

func (e *Executor) dispatch(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	if err := in.CheckContract(); err != nil {
		return nil, "", err
	}
	switch in.Action {
	case model.ActionNavigate:
		return e.navigate(ctx, in)
	case model.ActionClick:
		return e.click(ctx, in)
	case model.ActionTypeText:
		return e.typeText(ctx, in)
	case model.ActionScroll:
		return e.scroll(ctx, in)
	case model.ActionSearch:
		return e.search(ctx, in)
	case model.ActionExtract:
		return e.extract(ctx, in)
	case model.ActionObserve:
		return e.observe(ctx, in)
	case model.ActionWait:
		return e.wait(ctx, in)
	case model.ActionScreenshot:
		return e.screenshot(ctx)
	default:
		return nil, "", model.NewActionError(model.CodeUnknownAction, fmt.Sprintf("unknown action: %s", in.Action))
	}
}

// twoTier runs the deterministic step and, on a recoverable failure, the
// natural-language fallback. Both outcomes are explicit values.
func (e *Executor) twoTier(ctx context.Context, primary step, fallback string) (model.Strategy, error) {
	err := primary(ctx)
	if err == nil {
		return model.StrategyDeterministic, nil
	}
	if !driver.Recoverable(err) {
		return "", model.NewActionError(model.CodeAutomationFailed, err.Error())
	}
	e.log.Debug("Session %s: deterministic step failed (%v), falling back to %q", e.sessionID, err, fallback)
	if ferr := e.page.Act(ctx, fallback); ferr != nil {
		return "", model.NewActionError(model.CodeAutomationFailed,
			fmt.Sprintf("%v; fallback %q failed: %v", err, fallback, ferr))
	}
	return model.StrategyFallback, nil
}

func (e *Executor) navigate(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	url := normalizeURL(firstNonEmpty(in.Value, in.Target))
	strategy, err := e.twoTier(ctx, func(ctx context.Context) error {
		return e.page.Goto(ctx, url)
	}, "navigate to "+url)
	if err != nil {
		return nil, "", err
	}
	return model.ActionResult{"url": url, "success": true}, strategy, nil
}

func (e *Executor) click(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	strategy, err := e.twoTier(ctx, func(ctx context.Context) error {
		return e.page.Click(ctx, in.Target)
	}, "click "+in.Target)
	if err != nil {
		return nil, "", err
	}
	return model.ActionResult{"target": in.Target, "success": true}, strategy, nil
}

func (e *Executor) typeText(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	strategy, err := e.twoTier(ctx, func(ctx context.Context) error {
		return e.page.Fill(ctx, in.Target, in.Value)
	}, fmt.Sprintf("type %q into %s", in.Value, in.Target))
	if err != nil {
		return nil, "", err
	}
	return model.ActionResult{"target": in.Target, "value": in.Value, "success": true}, strategy, nil
}

func (e *Executor) scroll(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	direction := strings.ToLower(strings.TrimSpace(in.Value))
	if direction == "" {
		direction = "down"
	}

	var (
		primary  step
		fallback string
	)
	if in.Target != "" {
		primary = func(ctx context.Context) error { return e.page.ScrollIntoView(ctx, in.Target) }
		fallback = fmt.Sprintf("scroll %s to %s", direction, in.Target)
	} else {
		dy := e.scrollAmount
		if direction == "up" {
			dy = -dy
		}
		primary = func(ctx context.Context) error { return e.page.ScrollBy(ctx, 0, dy) }
		fallback = "scroll " + direction
	}

	strategy, err := e.twoTier(ctx, primary, fallback)
	if err != nil {
		return nil, "", err
	}
	result := model.ActionResult{"direction": direction, "success": true}
	if in.Target != "" {
		result["target"] = in.Target
	}
	return result, strategy, nil
}

func (e *Executor) search(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	query := in.Value
	strategy, err := e.twoTier(ctx, func(ctx context.Context) error {
		if err := e.page.Fill(ctx, searchInputSelector, query); err != nil {
			return err
		}
		return e.page.Click(ctx, searchSubmitSelector)
	}, fmt.Sprintf("search for %q", query))
	if err != nil {
		return nil, "", err
	}
	return model.ActionResult{"query": query, "success": true}, strategy, nil
}

func (e *Executor) extract(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	instruction := firstNonEmpty(in.Value, defaultExtractInstruction)
	schema, ok := in.Parameters["schema"].(map[string]any)
	if !ok || len(schema) == 0 {
		schema = defaultExtractSchema()
	}
	out, err := e.page.Extract(ctx, instruction, schema)
	if err != nil {
		return nil, "", model.NewActionError(model.CodeExtractionFailed, "failed to extract data: "+err.Error())
	}
	return model.ActionResult{"instruction": instruction, "result": out, "success": true}, model.StrategyAI, nil
}

func (e *Executor) observe(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	instruction := firstNonEmpty(in.Value, defaultObserveInstruction)
	out, err := e.page.Observe(ctx, instruction)
	if err != nil {
		return nil, "", model.NewActionError(model.CodeObservationFailed, "failed to observe page: "+err.Error())
	}
	return model.ActionResult{"instruction": instruction, "result": out, "success": true}, model.StrategyAI, nil
}

func (e *Executor) wait(ctx context.Context, in model.Intent) (model.ActionResult, model.Strategy, error) {
	ms := min(parseWaitMillis(in.Value), int(e.maxWait/time.Millisecond))
	d := time.Duration(ms) * time.Millisecond

	var (
		primary  step
		fallback string
	)
	if in.Target != "" {
		primary = func(ctx context.Context) error { return e.page.WaitForSelector(ctx, in.Target, d) }
		fallback = fmt.Sprintf("wait up to %d milliseconds for %s to appear", ms, in.Target)
	} else {
		primary = func(ctx context.Context) error { return e.page.WaitForTimeout(ctx, d) }
		fallback = fmt.Sprintf("wait %d milliseconds", ms)
	}

	strategy, err := e.twoTier(ctx, primary, fallback)
	if err != nil {
		return nil, "", err
	}
	result := model.ActionResult{"duration": ms, "success": true}
	if in.Target != "" {
		result["target"] = in.Target
	}
	return result, strategy, nil
}

func (e *Executor) screenshot(ctx context.Context) (model.ActionResult, model.Strategy, error) {
	png, err := e.page.Screenshot(ctx, true)
	if err == nil && len(png) == 0 {
		err = errors.New("empty image")
	}
	if err != nil {
		return nil, "", model.NewActionError(model.CodeScreenshotFailed, "failed to take screenshot: "+err.Error())
	}
	return model.ActionResult{"screenshot": driver.EncodePNG(png), "success": true}, model.StrategyDeterministic, nil
}

// parseWaitMillis reads a positive integer millisecond count, defaulting to
// one second. The executor clamps the result to its MaxWait.
func parseWaitMillis(v string) int {
	ms, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || ms <= 0 {
		return defaultWaitMillis
	}
	return ms
}

// normalizeURL adds https:// to bare hostnames such as "example.com".
func normalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.Contains(u, "://") || strings.HasPrefix(u, "about:") || strings.HasPrefix(u, "data:") {
		return u
	}
	if strings.ContainsAny(u, " \t") || !strings.Contains(u, ".") {
		return u
	}
	return "https://" + u
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
