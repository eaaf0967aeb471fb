package driver

import (
	"context"
	"fmt"

	"github.com/babelcloud/voicepilot/config"
	"github.com/babelcloud/voicepilot/internal/llm"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// Launcher turns an engine page into a full Page for a session.
type Launcher struct {
	engine        Engine
	model         llm.Provider
	contentTokens int
}

// NewLauncher wraps engine; model may be nil.
func NewLauncher(engine Engine, model llm.Provider, contentTokens int) *Launcher {
	return &Launcher{engine: engine, model: model, contentTokens: contentTokens}
}

// NewEngine builds the engine named by cfg.Engine.
func NewEngine(cfg config.BrowserConfig, log *logger.Logger, install bool) (Engine, error) {
	switch cfg.Engine {
	case "playwright", "":
		return NewPlaywrightEngine(cfg, log, install)
	case "rod":
		return NewRodEngine(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown browser engine: %s (supported: playwright, rod)", cfg.Engine)
	}
}

func (l *Launcher) Launch(ctx context.Context, sessionID string) (Page, error) {
	d, err := l.engine.Open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return NewAIPage(d, l.model, l.contentTokens), nil
}

func (l *Launcher) EngineName() string { return l.engine.Name() }

func (l *Launcher) Close() error { return l.engine.Close() }
