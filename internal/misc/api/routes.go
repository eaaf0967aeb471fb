package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	"github.com/babelcloud/voicepilot/internal/misc/model"
	agent "github.com/babelcloud/voicepilot/pkg/agent"
)

// RegisterRoutes adds the build, configuration and liveness reports to ws.
func RegisterRoutes(ws *restful.WebService, h *MiscHandler) {
	routes := []struct {
		path, doc string
		to        restful.RouteFunction
		sample    any
	}{
		{"/version", "get server version information", reply(h.service.GetVersion), model.VersionInfo{}},
		{"/debug", "report which credentials and collaborators are configured", reply(h.service.GetDebugInfo), model.DebugInfo{}},
		{"/health", "liveness plus the collaborators running degraded", reply(h.service.GetHealth), model.HealthInfo{}},
	}
	for _, r := range routes {
		ws.Route(ws.GET(r.path).To(r.to).
			Doc(r.doc).
			Writes(r.sample).
			Returns(http.StatusOK, "OK", agent.Envelope{}))
	}
}
