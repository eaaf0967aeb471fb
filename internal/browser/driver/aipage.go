package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/babelcloud/voicepilot/internal/llm"
)

const (
	actSystemPrompt = `You operate a web browser. Given a page map of interactive elements and an instruction, choose ONE step.
Reply with JSON only: {"action":"click|fill|goto|scroll|scrollIntoView|wait|none","selector":"css selector from the page map","text":"text to type","url":"absolute url","pixels":500,"milliseconds":1000,"reason":"short reason"}.
Use "none" when the instruction can't be carried out on this page.`

	extractSystemPrompt = `You extract structured data from web pages. Reply with JSON only, matching the requested schema exactly.`

	observeSystemPrompt = `You describe web pages. Reply with JSON only: {"observations":[{"description":"what it is","selector":"css selector if actionable","method":"click|fill|none"}]}.`
)

// AIPage adds natural-language automation on top of an engine Driver.
type AIPage struct {
	Driver
	model         llm.Provider
	contentTokens int
	converter     *md.Converter
}

var _ Page = (*AIPage)(nil)

// NewAIPage wraps d. A nil model leaves the deterministic calls working and
// makes Act, Extract and Observe fail with ErrNoModel.
func NewAIPage(d Driver, model llm.Provider, contentTokens int) *AIPage {
	return &AIPage{
		Driver:        d,
		model:         model,
		contentTokens: contentTokens,
		converter:     md.NewConverter("", true, nil),
	}
}

// WaitForTimeout sleeps for d or until ctx is done.
func (p *AIPage) WaitForTimeout(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type actStep struct {
	Action       string `json:"action"`
	Selector     string `json:"selector"`
	Text         string `json:"text"`
	URL          string `json:"url"`
	Pixels       int    `json:"pixels"`
	Milliseconds int    `json:"milliseconds"`
	Reason       string `json:"reason"`
}

// Act asks the model for one step toward instruction and performs it.
func (p *AIPage) Act(ctx context.Context, instruction string) error {
	if p.model == nil {
		return ErrNoModel
	}
	pm, err := p.pageMap(ctx)
	if err != nil {
		return err
	}
	pmJSON, _ := json.Marshal(pm)

	reply, err := p.model.Complete(ctx, llm.Request{
		System: actSystemPrompt,
		Prompt: fmt.Sprintf("Page map:\n%s\n\nInstruction: %s", pmJSON, instruction),
		JSON:   true,
	})
	if err != nil {
		return fmt.Errorf("act: %w", err)
	}
	var step actStep
	if err := llm.DecodeJSON(reply, &step); err != nil {
		return fmt.Errorf("act: %w", err)
	}
	return p.perform(ctx, step)
}

func (p *AIPage) perform(ctx context.Context, step actStep) error {
	switch strings.ToLower(step.Action) {
	case "click":
		return p.Click(ctx, step.Selector)
	case "fill", "type":
		return p.Fill(ctx, step.Selector, step.Text)
	case "goto", "navigate":
		return p.Goto(ctx, step.URL)
	case "scroll":
		px := step.Pixels
		if px == 0 {
			px = 500
		}
		return p.ScrollBy(ctx, 0, px)
	case "scrollintoview":
		return p.ScrollIntoView(ctx, step.Selector)
	case "wait":
		ms := step.Milliseconds
		if ms <= 0 {
			ms = 1000
		}
		if step.Selector != "" {
			return p.WaitForSelector(ctx, step.Selector, time.Duration(ms)*time.Millisecond)
		}
		return p.WaitForTimeout(ctx, time.Duration(ms)*time.Millisecond)
	case "none", "":
		if step.Reason != "" {
			return fmt.Errorf("%w: %s", ErrNotPossible, step.Reason)
		}
		return ErrNotPossible
	default:
		return fmt.Errorf("act: model chose unsupported step %q", step.Action)
	}
}

// Extract returns data shaped by schema, pulled from the page's readable content.
func (p *AIPage) Extract(ctx context.Context, instruction string, schema map[string]any) (any, error) {
	if p.model == nil {
		return nil, ErrNoModel
	}
	content, err := p.markdown(ctx)
	if err != nil {
		return nil, err
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("extract: encode schema: %w", err)
	}

	reply, err := p.model.Complete(ctx, llm.Request{
		System: extractSystemPrompt,
		Prompt: fmt.Sprintf("URL: %s\nInstruction: %s\nSchema (JSON): %s\n\nPage content (markdown):\n%s",
			p.URL(), instruction, schemaJSON, content),
		JSON:      true,
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	var out any
	if err := llm.DecodeJSON(reply, &out); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return out, nil
}

// Observe describes the page, listing actionable elements where it can.
func (p *AIPage) Observe(ctx context.Context, instruction string) ([]Observation, error) {
	if p.model == nil {
		return nil, ErrNoModel
	}
	pm, err := p.pageMap(ctx)
	if err != nil {
		return nil, err
	}
	content, err := p.markdown(ctx)
	if err != nil {
		return nil, err
	}
	pmJSON, _ := json.Marshal(pm)

	reply, err := p.model.Complete(ctx, llm.Request{
		System: observeSystemPrompt,
		Prompt: fmt.Sprintf("Instruction: %s\n\nPage map:\n%s\n\nPage content (markdown):\n%s", instruction, pmJSON, content),
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	var out struct {
		Observations []Observation `json:"observations"`
	}
	if err := llm.DecodeJSON(reply, &out); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	return out.Observations, nil
}

func (p *AIPage) pageMap(ctx context.Context) (*PageMap, error) {
	elements, err := p.Elements(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page map: %w", err)
	}
	title, _ := p.Title(ctx)
	return &PageMap{URL: p.URL(), Title: title, Elements: elements}, nil
}

func (p *AIPage) markdown(ctx context.Context) (string, error) {
	html, err := p.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	text, err := p.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert page content: %w", err)
	}
	return truncateTokens(text, p.contentTokens), nil
}
