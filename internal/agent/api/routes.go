package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

// RegisterRoutes registers the agent routes
func RegisterRoutes(ws *restful.WebService, handler *AgentHandler) {
	ws.Route(ws.POST("/actions").To(handler.SubmitAction).
		Doc("submit an intent for execution").
		Reads(model.SubmitRequest{}).
		Returns(http.StatusOK, "OK", model.Envelope{}).
		Returns(http.StatusBadRequest, "Bad Request", model.Envelope{}).
		Returns(http.StatusConflict, "Session closed", model.Envelope{}).
		Returns(http.StatusInternalServerError, "Internal Server Error", model.Envelope{}))

	ws.Route(ws.PUT("/actions").To(handler.ConfirmAction).
		Doc("confirm or cancel a held intent").
		Reads(model.ConfirmRequest{}).
		Returns(http.StatusOK, "OK", model.Envelope{}).
		Returns(http.StatusBadRequest, "Bad Request", model.Envelope{}))

	ws.Route(ws.DELETE("/actions").To(handler.CloseSessionByQuery).
		Doc("close a session").
		Param(ws.QueryParameter("sessionId", "session identifier").DataType("string").Required(true)).
		Returns(http.StatusOK, "OK", model.Envelope{}).
		Returns(http.StatusBadRequest, "Bad Request", model.Envelope{}))

	ws.Route(ws.GET("/actions").To(handler.ListSessions).
		Doc("list active sessions").
		Returns(http.StatusOK, "OK", model.Envelope{}))

	ws.Route(ws.GET("/sessions").To(handler.ListSessions).
		Doc("list active sessions").
		Returns(http.StatusOK, "OK", model.Envelope{}))

	ws.Route(ws.GET("/sessions/{id}").To(handler.GetSession).
		Doc("describe a live session, including its browser live view when the engine offers one").
		Param(ws.PathParameter("id", "session identifier").DataType("string")).
		Returns(http.StatusOK, "OK", model.Envelope{}).
		Returns(http.StatusNotFound, "No live session", model.Envelope{}))

	ws.Route(ws.DELETE("/sessions/{id}").To(handler.CloseSession).
		Doc("close a session").
		Param(ws.PathParameter("id", "session identifier").DataType("string")).
		Returns(http.StatusOK, "OK", model.Envelope{}))

	ws.Route(ws.GET("/sessions/{id}/context").To(handler.GetSessionContext).
		Doc("get a session's conversation history and last action").
		Param(ws.PathParameter("id", "session identifier").DataType("string")).
		Returns(http.StatusOK, "OK", model.Envelope{}))

	ws.Route(ws.GET("/sessions/{id}/events").To(handler.StreamEvents).
		Doc("stream a session's action updates over a websocket").
		Param(ws.PathParameter("id", "session identifier").DataType("string")).
		Returns(http.StatusSwitchingProtocols, "Switching Protocols", nil).
		Returns(http.StatusServiceUnavailable, "Event stream disabled", model.Envelope{}))

	ws.Route(ws.POST("/stt").To(handler.Transcribe).
		Doc("transcribe recorded audio (multipart field \"audio\" or raw body)").
		Consumes("*/*").
		Returns(http.StatusOK, "OK", model.Envelope{}).
		Returns(http.StatusBadRequest, "Bad Request", model.Envelope{}).
		Returns(http.StatusServiceUnavailable, "Transcription unavailable", model.Envelope{}))

	ws.Route(ws.POST("/intent").To(handler.ParseIntent).
		Doc("parse a transcript into an intent").
		Reads(model.ParseRequest{}).
		Returns(http.StatusOK, "OK", model.Envelope{}).
		Returns(http.StatusBadRequest, "Bad Request", model.Envelope{}))
}
