// Package service reports build and runtime information about the server.
package service

import (
	"runtime"
	"runtime/debug"
	"sort"
	"time"

	"github.com/babelcloud/voicepilot/internal/misc/model"
	agent "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/format"
)

// Set with -ldflags "-X".
var (
	Version   = "dev"
	BuildTime = "unknown"
	CommitID  = "unknown"
)

// Runtime describes the collaborators the server was started with.
type Runtime struct {
	Keys          map[string]bool
	BrowserEngine string
	LLMProvider   string
	STTProvider   string
	MemoryBackend string
	MemoryOnline  bool
	// ActiveSessions counts live browser sessions; nil reports zero.
	ActiveSessions func() int
}

type MiscService struct {
	runtime Runtime
	started time.Time
	now     func() time.Time
}

func New(rt Runtime) *MiscService {
	return &MiscService{runtime: rt, started: time.Now(), now: time.Now}
}

// commit prefers the ldflags value and falls back to the VCS stamp the Go
// toolchain embeds.
func commit() string {
	if CommitID != "unknown" {
		return CommitID
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return CommitID
}

func formattedBuildTime() string {
	t, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		return BuildTime
	}
	return t.Format("Mon Jan 2 15:04:05 2006")
}

func (s *MiscService) GetVersion() *model.VersionInfo {
	return &model.VersionInfo{
		Version:       Version,
		APIVersion:    "v1",
		GoVersion:     runtime.Version(),
		GitCommit:     commit(),
		BuildTime:     BuildTime,
		FormattedTime: formattedBuildTime(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
}

// GetDebugInfo reports configuration without revealing any secret.
func (s *MiscService) GetDebugInfo() *model.DebugInfo {
	keys := make(map[string]string, len(s.runtime.Keys))
	for name, set := range s.runtime.Keys {
		keys[name] = agent.KeyNotSet
		if set {
			keys[name] = agent.KeySet
		}
	}
	rt := s.runtime
	return &model.DebugInfo{
		Keys:          keys,
		BrowserEngine: rt.BrowserEngine,
		LLMProvider:   rt.LLMProvider,
		STTProvider:   rt.STTProvider,
		MemoryBackend: rt.MemoryBackend,
		MemoryOnline:  rt.MemoryOnline,
	}
}

// GetHealth is always "ok" while the process serves requests; collaborators
// running without a backend are listed as degraded.
func (s *MiscService) GetHealth() *model.HealthInfo {
	h := &model.HealthInfo{Status: "ok", Uptime: "0s"}
	if up := s.now().Sub(s.started).Truncate(time.Second); up > 0 {
		h.Uptime = format.FormatDurationConcise(up)
	}
	if s.runtime.ActiveSessions != nil {
		h.ActiveSessions = s.runtime.ActiveSessions()
	}
	for name, missing := range map[string]bool{
		"llm":    s.runtime.LLMProvider == "" || s.runtime.LLMProvider == "none",
		"stt":    s.runtime.STTProvider == "" || s.runtime.STTProvider == "none",
		"memory": !s.runtime.MemoryOnline,
	} {
		if missing {
			h.Degraded = append(h.Degraded, name)
		}
	}
	sort.Strings(h.Degraded)
	return h
}
