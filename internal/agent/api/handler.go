package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/emicklei/go-restful/v3"

	agentSvc "github.com/babelcloud/voicepilot/internal/agent/service"
	browserSvc "github.com/babelcloud/voicepilot/internal/browser/service"
	apierrors "github.com/babelcloud/voicepilot/internal/common/errors"
	"github.com/babelcloud/voicepilot/internal/llm"
	"github.com/babelcloud/voicepilot/internal/stt"
	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// maxAudioBytes matches the largest upload the transcription providers accept.
const maxAudioBytes = 25 << 20

var log = logger.New()

// EventStreamer serves a session's live action updates over a websocket.
type EventStreamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID string)
}

// AgentHandler exposes the agent service over HTTP.
type AgentHandler struct {
	service *agentSvc.AgentService
	events  EventStreamer
}

// NewAgentHandler creates a handler. events may be nil, which disables the
// event stream route's upgrade.
func NewAgentHandler(svc *agentSvc.AgentService, events EventStreamer) *AgentHandler {
	if svc == nil {
		panic("AgentService cannot be nil")
	}
	return &AgentHandler{service: svc, events: events}
}

// toAPIError maps a service error onto the HTTP status it surfaces as.
func toAPIError(err error) *apierrors.Error {
	var apiErr *apierrors.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, agentSvc.ErrInvalidRequest), errors.Is(err, model.ErrInvalidIntent):
		return apierrors.Wrap(apierrors.CodeBadRequest, err)
	case errors.Is(err, agentSvc.ErrSessionNotFound):
		return apierrors.Wrap(apierrors.CodeNotFound, err)
	case errors.Is(err, agentSvc.ErrUnavailable), errors.Is(err, stt.ErrUnavailable), errors.Is(err, llm.ErrUnavailable):
		return apierrors.Wrap(apierrors.CodeServiceUnavailable, err)
	case errors.Is(err, browserSvc.ErrExecutorClosed), errors.Is(err, browserSvc.ErrRegistryClosed):
		return apierrors.Wrap(apierrors.CodeConflict, err)
	default:
		return apierrors.Wrap(apierrors.CodeInternalError, err)
	}
}

func writeError(resp *restful.Response, err error) {
	apiErr := toAPIError(err)
	if apiErr.Code >= http.StatusInternalServerError {
		log.Error("API Error (%d): %v", apiErr.Code, err)
	} else {
		log.Debug("API Error (%d): %v", apiErr.Code, err)
	}
	_ = resp.WriteHeaderAndJson(apiErr.Code, model.NewErrorEnvelope(apiErr.Message), restful.MIME_JSON)
}

func writeData(resp *restful.Response, data any) {
	_ = resp.WriteHeaderAndJson(http.StatusOK, model.NewSuccessEnvelope(data), restful.MIME_JSON)
}

func readBody(req *restful.Request, v any) error {
	if err := req.ReadEntity(v); err != nil {
		return apierrors.Newf(apierrors.CodeBadRequest, "invalid request body: %v", err)
	}
	return nil
}

// SubmitAction handles POST /actions
func (h *AgentHandler) SubmitAction(req *restful.Request, resp *restful.Response) {
	var body model.SubmitRequest
	if err := readBody(req, &body); err != nil {
		writeError(resp, err)
		return
	}
	result, err := h.service.SubmitIntent(req.Request.Context(), body)
	if err != nil {
		writeError(resp, err)
		return
	}
	writeData(resp, result)
}

// ConfirmAction handles PUT /actions
func (h *AgentHandler) ConfirmAction(req *restful.Request, resp *restful.Response) {
	var body model.ConfirmRequest
	if err := readBody(req, &body); err != nil {
		writeError(resp, err)
		return
	}
	result, err := h.service.ConfirmIntent(req.Request.Context(), body)
	if err != nil {
		writeError(resp, err)
		return
	}
	writeData(resp, result)
}

// CloseSessionByQuery handles DELETE /actions?sessionId=
func (h *AgentHandler) CloseSessionByQuery(req *restful.Request, resp *restful.Response) {
	h.closeSession(req, resp, req.QueryParameter("sessionId"))
}

// CloseSession handles DELETE /sessions/{id}
func (h *AgentHandler) CloseSession(req *restful.Request, resp *restful.Response) {
	h.closeSession(req, resp, req.PathParameter("id"))
}

func (h *AgentHandler) closeSession(req *restful.Request, resp *restful.Response, sessionID string) {
	result, err := h.service.CloseSession(req.Request.Context(), sessionID)
	if err != nil {
		writeError(resp, err)
		return
	}
	writeData(resp, result)
}

// ListSessions handles GET /actions and GET /sessions
func (h *AgentHandler) ListSessions(req *restful.Request, resp *restful.Response) {
	writeData(resp, h.service.ListSessions())
}

// GetSession handles GET /sessions/{id}
func (h *AgentHandler) GetSession(req *restful.Request, resp *restful.Response) {
	info, err := h.service.Session(req.PathParameter("id"))
	if err != nil {
		writeError(resp, err)
		return
	}
	writeData(resp, info)
}

// GetSessionContext handles GET /sessions/{id}/context
func (h *AgentHandler) GetSessionContext(req *restful.Request, resp *restful.Response) {
	sc, err := h.service.SessionContext(req.Request.Context(), req.PathParameter("id"))
	if err != nil {
		writeError(resp, err)
		return
	}
	writeData(resp, sc)
}

// StreamEvents handles GET /sessions/{id}/events
func (h *AgentHandler) StreamEvents(req *restful.Request, resp *restful.Response) {
	if h.events == nil {
		writeError(resp, fmt.Errorf("%w: event stream disabled", agentSvc.ErrUnavailable))
		return
	}
	h.events.ServeWS(resp.ResponseWriter, req.Request, req.PathParameter("id"))
}

// Transcribe handles POST /stt. The audio is either the multipart field
// "audio" or the raw request body.
func (h *AgentHandler) Transcribe(req *restful.Request, resp *restful.Response) {
	audio, mimeType, err := readAudio(resp.ResponseWriter, req.Request)
	if err != nil {
		writeError(resp, err)
		return
	}
	tr, err := h.service.Transcribe(req.Request.Context(), audio, mimeType)
	if err != nil {
		writeError(resp, err)
		return
	}
	writeData(resp, tr)
}

func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
			return nil, "", apierrors.Newf(apierrors.CodeBadRequest, "invalid multipart body: %v", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			return nil, "", apierrors.New(apierrors.CodeBadRequest, "No audio file provided")
		}
		defer file.Close()
		audio, err := io.ReadAll(file)
		if err != nil {
			return nil, "", apierrors.Newf(apierrors.CodeBadRequest, "failed to read audio: %v", err)
		}
		return audio, header.Header.Get("Content-Type"), nil
	}

	audio, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", apierrors.Newf(apierrors.CodeBadRequest, "failed to read audio: %v", err)
	}
	return audio, contentType, nil
}

// ParseIntent handles POST /intent
func (h *AgentHandler) ParseIntent(req *restful.Request, resp *restful.Response) {
	var body model.ParseRequest
	if err := readBody(req, &body); err != nil {
		writeError(resp, err)
		return
	}
	in, err := h.service.ParseIntent(req.Request.Context(), body)
	if err != nil {
		writeError(resp, err)
		return
	}
	writeData(resp, in)
}
