package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/babelcloud/voicepilot/config"
	agentApi "github.com/babelcloud/voicepilot/internal/agent/api"
	agentService "github.com/babelcloud/voicepilot/internal/agent/service"
	"github.com/babelcloud/voicepilot/internal/assistant"
	"github.com/babelcloud/voicepilot/internal/browser/driver"
	browserService "github.com/babelcloud/voicepilot/internal/browser/service"
	"github.com/babelcloud/voicepilot/internal/confirm"
	"github.com/babelcloud/voicepilot/internal/cron"
	"github.com/babelcloud/voicepilot/internal/events"
	"github.com/babelcloud/voicepilot/internal/llm"
	"github.com/babelcloud/voicepilot/internal/memory"
	miscApi "github.com/babelcloud/voicepilot/internal/misc/api"
	miscService "github.com/babelcloud/voicepilot/internal/misc/service"
	"github.com/babelcloud/voicepilot/internal/stt"
	"github.com/babelcloud/voicepilot/internal/tracker"
	"github.com/babelcloud/voicepilot/pkg/format"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	var installBrowsers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(installBrowsers)
		},
	}
	cmd.Flags().BoolVar(&installBrowsers, "install-browsers", false, "download playwright browsers before starting")
	return cmd
}

func serve(installBrowsers bool) error {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	log := logger.New()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic recovered: %v", r)
			os.Exit(1)
		}
	}()

	cfg := config.GetInstance()
	if err := logger.Configure(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return err
	}

	ctx := context.Background()

	// Collaborators degrade instead of failing startup.
	provider, err := llm.New(cfg.LLM)
	if err != nil {
		log.Warn("LLM provider unavailable, intent parsing and natural-language fallback disabled: %v", err)
		provider = nil
	}
	transcriber, err := stt.New(cfg.STT, cfg.LLM.OpenAIAPIKey)
	if err != nil {
		log.Warn("Speech-to-text unavailable: %v", err)
		transcriber = nil
	}
	mem, closeMemory := memory.New(ctx, cfg.Memory, log)
	defer closeMemory()

	engine, err := driver.NewEngine(cfg.Browser, log, installBrowsers)
	if err != nil {
		return fmt.Errorf("failed to initialize browser engine: %w", err)
	}
	launcher := driver.NewLauncher(engine, provider, cfg.Browser.ContentTokens)
	defer func() {
		if err := launcher.Close(); err != nil {
			log.Warn("Failed to stop browser engine: %v", err)
		}
	}()
	log.Info(format.FormatBrowserEngine(launcher.EngineName(), cfg.Browser.RemoteEndpoint() != ""))

	accessTracker := tracker.NewInMemoryAccessTracker()
	hub := events.NewHub(0, log)
	defer hub.Close()

	registry := browserService.NewRegistry(launcher, browserService.ExecutorOptions{
		ScrollAmount: cfg.Browser.ScrollAmount,
		MaxWait:      cfg.Browser.MaxWait,
		Memory:       mem,
		Observer:     hub,
		Log:          log,
	}, accessTracker)

	asst := assistant.New(provider, log)
	agentSvc := agentService.New(agentService.Deps{
		Registry:    registry,
		Gate:        confirm.NewGate(asst, log),
		Parser:      asst,
		Summarizer:  asst,
		Memory:      mem,
		Transcriber: transcriber,
		Log:         log,
	})

	miscSvc := miscService.New(miscService.Runtime{
		Keys:           cfg.KeyStatus(),
		BrowserEngine:  launcher.EngineName(),
		LLMProvider:    providerName(provider),
		STTProvider:    transcriberName(transcriber),
		MemoryBackend:  mem.Backend(),
		MemoryOnline:   mem.Available(),
		ActiveSessions: func() int {
			return len(registry.List())
		},
	})

	log.Info("Session idle timeout: %s", format.FormatDurationConcise(cfg.Session.IdleTimeout))
	cronManager := cron.NewManager(log, registry, accessTracker, cfg.Session.ReapSchedule, cfg.Session.IdleTimeout)
	if err := cronManager.Start(); err != nil {
		return fmt.Errorf("failed to start session reaper: %w", err)
	}
	defer cronManager.Stop()

	container := newContainer(log,
		agentApi.NewAgentHandler(agentSvc, hub),
		miscApi.NewMiscHandler(miscSvc))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Success("Starting server on %s", addr)
	log.Info("Accessible URLs:")
	for _, ip := range localIPs() {
		log.Info("  http://%s:%d", ip, cfg.Server.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:    addr,
		Handler: container,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-sigChan:
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}
	if err := agentSvc.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to close browser sessions: %v", err)
	}

	log.Info("Server exited properly")
	return nil
}

// newContainer builds the REST container with CORS and request logging.
func newContainer(log *logger.Logger, agentHandler *agentApi.AgentHandler, miscHandler *miscApi.MiscHandler) *restful.Container {
	container := restful.NewContainer()

	ws := new(restful.WebService)
	ws.Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	agentApi.RegisterRoutes(ws, agentHandler)
	miscApi.RegisterRoutes(ws, miscHandler)
	container.Add(ws)

	endpoints := make([]format.APIEndpoint, 0, len(ws.Routes()))
	for _, route := range ws.Routes() {
		endpoints = append(endpoints, format.APIEndpoint{
			Method:      route.Method,
			Path:        route.Path,
			Description: route.Doc,
		})
	}
	format.LogAPIEndpoints(log, endpoints)

	cors := restful.CrossOriginResourceSharing{
		AllowedHeaders: []string{"Content-Type", "Accept"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedDomains: []string{"*"},
		Container:      container,
	}
	container.Filter(cors.Filter)
	container.Filter(container.OPTIONSFilter)

	container.Filter(func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		url := req.Request.URL.Path
		if req.Request.URL.RawQuery != "" {
			url += "?" + req.Request.URL.RawQuery
		}
		log.Info("%s %s %s", req.Request.Method, url, req.Request.Proto)

		if log.IsDebugEnabled() && len(req.Request.Header) > 0 {
			headers := make([]string, 0, len(req.Request.Header))
			for name, values := range req.Request.Header {
				headers = append(headers, fmt.Sprintf("%s: %s", name, values[0]))
			}
			log.Debug("Headers: %s", strings.Join(headers, ", "))
		}

		chain.ProcessFilter(req, resp)
		log.Debug("Response status: %d", resp.StatusCode())
	})

	return container
}

func providerName(p llm.Provider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

func transcriberName(t stt.Transcriber) string {
	if t == nil {
		return "none"
	}
	return t.Name()
}

// localIPs returns localhost plus the first non-loopback IPv4 address.
func localIPs() []string {
	ips := []string{"localhost", "127.0.0.1"}
	interfaces, err := net.Interfaces()
	if err != nil {
		return ips
	}
	for _, i := range interfaces {
		if i.Flags&net.FlagLoopback != 0 || i.Flags&net.FlagUp == 0 || i.Flags&net.FlagPointToPoint != 0 {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return append(ips, ipnet.IP.String())
			}
		}
	}
	return ips
}
