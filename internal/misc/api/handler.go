package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	"github.com/babelcloud/voicepilot/internal/misc/service"
	agent "github.com/babelcloud/voicepilot/pkg/agent"
)

type MiscHandler struct {
	service *service.MiscService
}

func NewMiscHandler(svc *service.MiscService) *MiscHandler {
	if svc == nil {
		panic("MiscService cannot be nil")
	}
	return &MiscHandler{service: svc}
}

// reply wraps a report in the success envelope; none of these can fail.
func reply[T any](report func() T) restful.RouteFunction {
	return func(_ *restful.Request, resp *restful.Response) {
		_ = resp.WriteHeaderAndJson(http.StatusOK, agent.NewSuccessEnvelope(report()), restful.MIME_JSON)
	}
}
