package model

// VersionInfo describes the running build.
type VersionInfo struct {
	Version       string `json:"version"`
	APIVersion    string `json:"apiVersion"`
	GoVersion     string `json:"goVersion"`
	GitCommit     string `json:"gitCommit"`
	BuildTime     string `json:"buildTime"`
	FormattedTime string `json:"formattedTime"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
}

// DebugInfo reports which collaborators are configured. Credentials appear
// only as SET or NOT SET.
type DebugInfo struct {
	Keys          map[string]string `json:"keys"`
	BrowserEngine string            `json:"browserEngine"`
	LLMProvider   string            `json:"llmProvider"`
	STTProvider   string            `json:"sttProvider"`
	MemoryBackend string            `json:"memoryBackend"`
	MemoryOnline  bool              `json:"memoryAvailable"`
}

type HealthInfo struct {
	Status         string   `json:"status"`
	Uptime         string   `json:"uptime"`
	ActiveSessions int      `json:"activeSessions"`
	Degraded       []string `json:"degraded,omitempty"`
}
