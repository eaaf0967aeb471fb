// Package service implements the voice agent's entry points: submitting and
// confirming intents, parsing transcripts and managing sessions.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	browser "github.com/babelcloud/voicepilot/internal/browser/service"
	"github.com/babelcloud/voicepilot/internal/confirm"
	"github.com/babelcloud/voicepilot/internal/memory"
	"github.com/babelcloud/voicepilot/internal/stt"
	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// Deps are the collaborators of the agent service. Registry is required;
// the rest degrade when nil.
type Deps struct {
	Registry    *browser.Registry
	Gate        *confirm.Gate
	Parser      IntentParser
	Summarizer  Summarizer
	Memory      memory.Sink
	Transcriber stt.Transcriber
	Log         *logger.Logger
}

// AgentService is safe for concurrent use.
type AgentService struct {
	registry    *browser.Registry
	gate        *confirm.Gate
	parser      IntentParser
	summarizer  Summarizer
	memory      memory.Sink
	transcriber stt.Transcriber
	log         *logger.Logger
}

func New(d Deps) *AgentService {
	if d.Registry == nil {
		panic("agent service requires a session registry")
	}
	if d.Log == nil {
		d.Log = logger.New()
	}
	if d.Gate == nil {
		d.Gate = confirm.NewGate(nil, d.Log)
	}
	if d.Memory == nil {
		d.Memory = memory.Noop{}
	}
	return &AgentService{
		registry:    d.Registry,
		gate:        d.Gate,
		parser:      d.Parser,
		summarizer:  d.Summarizer,
		memory:      d.Memory,
		transcriber: d.Transcriber,
		log:         d.Log,
	}
}

// validSchema checks the intent's shape. It runs before the gate; the
// per-action contract is checked only when the intent is about to execute.
func validSchema(in *model.Intent) (model.Intent, error) {
	if err := in.Validate(); err != nil {
		return model.Intent{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return in.Clone(), nil
}

func checkContract(in model.Intent) error {
	if cerr := in.CheckContract(); cerr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, cerr)
	}
	return nil
}

// SubmitIntent gates the intent and, unless it must be confirmed first,
// executes it in the session. A flagged intent always gets the confirmation
// envelope, even one that would fail its contract on execution.
func (s *AgentService) SubmitIntent(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	if req.Intent == nil || strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: Intent and sessionId are required", ErrInvalidRequest)
	}
	in, err := validSchema(req.Intent)
	if err != nil {
		return nil, err
	}

	if d := s.gate.Evaluate(ctx, in); d.MustConfirm {
		s.log.Info("Session %s: holding %s for confirmation", req.SessionID, in.Describe())
		return &model.SubmitResult{RequiresConfirmation: true, ConfirmationPrompt: d.Prompt, Intent: &in}, nil
	}

	action, summary, err := s.execute(ctx, req.SessionID, in)
	if err != nil {
		return nil, err
	}
	return &model.SubmitResult{Action: action, Summary: summary}, nil
}

// ConfirmIntent resolves a held intent. Declining touches nothing; confirming
// executes unconditionally, whatever requiresConfirmation says.
func (s *AgentService) ConfirmIntent(ctx context.Context, req model.ConfirmRequest) (*model.ConfirmResult, error) {
	if req.Intent == nil || strings.TrimSpace(req.SessionID) == "" || req.Confirmed == nil {
		return nil, fmt.Errorf("%w: Intent, sessionId, and confirmed status are required", ErrInvalidRequest)
	}
	if !*req.Confirmed {
		s.log.Info("Session %s: %s cancelled by user", req.SessionID, req.Intent.Describe())
		return &model.ConfirmResult{Cancelled: true}, nil
	}
	in, err := validSchema(req.Intent)
	if err != nil {
		return nil, err
	}

	action, summary, err := s.execute(ctx, req.SessionID, in)
	if err != nil {
		return nil, err
	}
	return &model.ConfirmResult{Action: action, Summary: summary}, nil
}

// execute rejects contract violations before the session is touched.
func (s *AgentService) execute(ctx context.Context, sessionID string, in model.Intent) (*model.BrowserAction, string, error) {
	if err := checkContract(in); err != nil {
		return nil, "", err
	}
	exec, err := s.registry.GetOrCreate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, browser.ErrEmptySessionID) {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, "", fmt.Errorf("failed to initialize browser session: %w", err)
	}

	action, err := exec.Execute(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("action not started: %w", err)
	}
	return action, s.summarize(ctx, in, action), nil
}

func (s *AgentService) summarize(ctx context.Context, in model.Intent, action *model.BrowserAction) string {
	if s.summarizer == nil {
		if action.Succeeded() {
			return "Completed " + in.Describe()
		}
		return fmt.Sprintf("Failed %s: %s", in.Describe(), action.Error)
	}
	return s.summarizer.Summarize(ctx, in, action)
}

// CloseSession is idempotent and always reports the session closed. History
// held only in process memory is dropped with the session; durable backends
// keep it.
func (s *AgentService) CloseSession(ctx context.Context, sessionID string) (*model.CloseResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: SessionId is required", ErrInvalidRequest)
	}
	if err := s.registry.Close(ctx, sessionID); err != nil {
		s.log.Warn("Session %s: error while closing: %v", sessionID, err)
	}
	if f, ok := s.memory.(memory.Forgetter); ok {
		f.Forget(sessionID)
	}
	return &model.CloseResult{SessionClosed: true}, nil
}

// Session describes the session's live browser.
func (s *AgentService) Session(sessionID string) (*model.SessionInfo, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: SessionId is required", ErrInvalidRequest)
	}
	exec, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return &model.SessionInfo{
		SessionID:   sessionID,
		Active:      true,
		CreatedAt:   exec.CreatedAt(),
		LiveViewURL: exec.LiveViewURL(),
	}, nil
}

// ListSessions returns the ids of sessions with a live executor.
func (s *AgentService) ListSessions() *model.SessionList {
	return &model.SessionList{ActiveSessions: s.registry.List()}
}

// Transcribe converts recorded audio into a transcript.
func (s *AgentService) Transcribe(ctx context.Context, audio []byte, mimeType string) (*model.Transcript, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: No audio file provided", ErrInvalidRequest)
	}
	if s.transcriber == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, stt.ErrUnavailable)
	}
	tr, err := s.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return tr, nil
}

// ParseIntent parses a transcript, using and then extending the session's
// history when a session id is given. Only a missing transcript fails.
func (s *AgentService) ParseIntent(ctx context.Context, req model.ParseRequest) (*model.Intent, error) {
	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		return nil, fmt.Errorf("%w: No transcript provided", ErrInvalidRequest)
	}

	var sc *model.SessionContext
	if req.SessionID != "" {
		var err error
		if sc, err = s.memory.Context(ctx, req.SessionID); err != nil {
			s.log.Warn("Failed to get session context for %s: %v", req.SessionID, err)
			sc = nil
		}
	}

	in := model.UnknownIntent()
	if s.parser != nil {
		in = s.parser.ParseIntent(ctx, transcript, sc)
	}
	if err := in.Validate(); err != nil {
		s.log.Warn("Parser produced an invalid intent: %v", err)
		in = model.UnknownIntent()
	}

	if req.SessionID != "" {
		s.recordTurn(ctx, req.SessionID, model.RoleUser, transcript)
		b, _ := json.Marshal(in)
		s.recordTurn(ctx, req.SessionID, model.RoleAssistant, "Parsed intent: "+string(b))
	}
	return &in, nil
}

func (s *AgentService) recordTurn(ctx context.Context, sessionID string, role model.Role, content string) {
	if err := s.memory.RecordTurn(ctx, sessionID, role, content); err != nil {
		s.log.Warn("Failed to store conversation in memory: %v", err)
	}
}

// SessionContext returns the session's recorded history, plus the live view
// of its browser while one is open.
func (s *AgentService) SessionContext(ctx context.Context, sessionID string) (*model.SessionContext, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: SessionId is required", ErrInvalidRequest)
	}
	sc, err := s.memory.Context(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session context: %w", err)
	}
	if exec, ok := s.registry.Get(sessionID); ok {
		sc.LiveViewURL = exec.LiveViewURL()
	}
	return sc, nil
}

// Shutdown closes every session.
func (s *AgentService) Shutdown(ctx context.Context) error {
	return s.registry.Shutdown(ctx)
}
