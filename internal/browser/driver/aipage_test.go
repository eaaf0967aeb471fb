package driver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/voicepilot/internal/browser/driver"
	"github.com/babelcloud/voicepilot/internal/browser/driver/drivertest"
	"github.com/babelcloud/voicepilot/internal/llm/llmtest"
)

func newDriver() *drivertest.FakeDriver {
	return &drivertest.FakeDriver{
		HTML:     `<html><body><h1>Shop</h1><a href="/cart">Cart</a><button id="buy">Buy</button></body></html>`,
		PageURL:  "https://shop.example.com",
		PageName: "Shop",
		Items: []driver.Element{
			{Selector: "#buy", Type: "button", Text: "Buy"},
		},
	}
}

func TestActPerformsModelStep(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		method string
	}{
		{"click", `{"action":"click","selector":"#buy"}`, "Click"},
		{"fill", "```json\n{\"action\":\"fill\",\"selector\":\"#q\",\"text\":\"shoes\"}\n```", "Fill"},
		{"goto", `{"action":"goto","url":"https://example.com"}`, "Goto"},
		{"scroll", `{"action":"scroll","pixels":-300}`, "ScrollBy"},
		{"wait for selector", `{"action":"wait","selector":"#done","milliseconds":50}`, "WaitForSelector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDriver()
			model := llmtest.New(tt.reply)
			p := driver.NewAIPage(d, model, 1000)

			require.NoError(t, p.Act(context.Background(), "do the thing"))
			assert.Equal(t, []string{tt.method}, d.Recorded())
			require.Len(t, model.Calls, 1)
			assert.Contains(t, model.Calls[0].Prompt, "#buy")
			assert.Contains(t, model.Calls[0].Prompt, "do the thing")
		})
	}
}

func TestActNotPossible(t *testing.T) {
	p := driver.NewAIPage(newDriver(), llmtest.New(`{"action":"none","reason":"no login form"}`), 0)
	err := p.Act(context.Background(), "log in")
	assert.ErrorIs(t, err, driver.ErrNotPossible)
	assert.Contains(t, err.Error(), "no login form")
}

func TestNaturalLanguageCallsWithoutModel(t *testing.T) {
	p := driver.NewAIPage(newDriver(), nil, 0)
	ctx := context.Background()

	assert.ErrorIs(t, p.Act(ctx, "click buy"), driver.ErrNoModel)
	_, err := p.Extract(ctx, "prices", nil)
	assert.ErrorIs(t, err, driver.ErrNoModel)
	_, err = p.Observe(ctx, "look")
	assert.ErrorIs(t, err, driver.ErrNoModel)

	assert.NoError(t, p.Click(ctx, "#buy"), "deterministic calls still work")
}

func TestExtractSendsMarkdownAndSchema(t *testing.T) {
	model := llmtest.New(`{"content":"Shop","links":["/cart"],"images":[]}`)
	p := driver.NewAIPage(newDriver(), model, 1000)

	out, err := p.Extract(context.Background(), "get links", map[string]any{"links": []string{"string"}})
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Shop", m["content"])

	prompt := model.Calls[0].Prompt
	assert.Contains(t, prompt, "# Shop")
	assert.Contains(t, prompt, `"links"`)
	assert.Contains(t, prompt, "https://shop.example.com")
	assert.True(t, model.Calls[0].JSON)
}

func TestExtractBadReply(t *testing.T) {
	p := driver.NewAIPage(newDriver(), llmtest.New("I can't do that"), 0)
	_, err := p.Extract(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestObserve(t *testing.T) {
	model := llmtest.New(`{"observations":[{"description":"Buy button","selector":"#buy","method":"click"}]}`)
	p := driver.NewAIPage(newDriver(), model, 0)

	obs, err := p.Observe(context.Background(), "what can I do?")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "#buy", obs[0].Selector)
}

func TestWaitForTimeoutHonorsContext(t *testing.T) {
	p := driver.NewAIPage(newDriver(), nil, 0)

	start := time.Now()
	require.NoError(t, p.WaitForTimeout(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.WaitForTimeout(ctx, time.Hour), context.Canceled)
}

func TestRecoverable(t *testing.T) {
	assert.True(t, driver.Recoverable(errors.New("timeout waiting for selector")))
	assert.False(t, driver.Recoverable(nil))
	assert.False(t, driver.Recoverable(driver.ErrPageClosed))
	assert.False(t, driver.Recoverable(driver.ErrNoModel))
	assert.False(t, driver.Recoverable(context.Canceled))
}

func TestEncodePNG(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,cG5n", driver.EncodePNG([]byte("png")))
}
