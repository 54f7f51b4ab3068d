package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/frontdesk-ai/callcore/internal/config"
	"github.com/frontdesk-ai/callcore/internal/engine"
	"github.com/frontdesk-ai/callcore/internal/llm"
	"github.com/frontdesk-ai/callcore/internal/observability"
	"github.com/frontdesk-ai/callcore/internal/registry"
	"github.com/frontdesk-ai/callcore/internal/sinks"
	"github.com/frontdesk-ai/callcore/internal/stt"
	"github.com/frontdesk-ai/callcore/internal/telephony"
	"github.com/frontdesk-ai/callcore/internal/tenant"
	"github.com/frontdesk-ai/callcore/internal/tools"
	"github.com/frontdesk-ai/callcore/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()

	tenantStore, err := tenant.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("tenant store init failed: %v", err)
	}
	defer tenantStore.Close()
	tenantCache := tenant.NewCache(tenantStore, cfg.TenantCacheTTL)

	toolStore, err := newToolStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("tool store init failed: %v", err)
	}
	if closer, ok := toolStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	router := tools.NewRouter(toolStore)

	adapter, err := llm.NewAdapter(llm.Config{
		Mode:             cfg.LLMMode,
		HTTPURL:          cfg.LLMHTTPURL,
		HTTPStreamStrict: cfg.LLMHTTPStreamStrict,
	})
	if err != nil {
		log.Fatalf("llm adapter init failed: %v", err)
	}

	sttProvider := resolveSTTProvider(cfg)
	ttsProvider := resolveTTSProvider(cfg)

	bookingSink, smsSink := resolveSinks(ctx, cfg)
	if closer, ok := bookingSink.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	reg := registry.New(registry.Config{
		Tenants:            tenantCache,
		STT:                sttProvider,
		TTS:                ttsProvider,
		Engine:             engine.New(adapter, router),
		Metrics:            metrics,
		BookingSink:        bookingSink,
		SMSSink:            smsSink,
		DebounceWindow:     cfg.DebounceWindow,
		BargeInMinChars:    cfg.BargeInMinChars,
		EndFailsafeTimeout: cfg.TTSFlushWaitOnEnd,
		STTUtteranceEndMS:  cfg.STTUtteranceEndMS,
		STTEndpointSilence: cfg.STTEndpointSilence,
		IdleGuard:          cfg.SessionIdleGuard,
	})

	server := telephony.NewServer(reg, metrics, cfg.AllowAnyOrigin)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: server.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	reg.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	if err := reg.Shutdown(shutdownCtx, cfg.ShutdownTimeout); err != nil {
		log.Printf("session drain incomplete: %v", err)
	}

	log.Printf("shutdown complete")
}

func newToolStore(ctx context.Context, databaseURL string) (tools.Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return tools.NewMockStore(), nil
	}
	return tools.NewPostgresStore(ctx, databaseURL)
}

func resolveSTTProvider(cfg config.Config) stt.Provider {
	mode := strings.ToLower(strings.TrimSpace(cfg.STTProvider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "deepgram":
		if strings.TrimSpace(cfg.DeepgramAPIKey) == "" {
			log.Fatalf("STT_PROVIDER=deepgram but DEEPGRAM_API_KEY is not set")
		}
	case "mock":
		log.Printf("stt provider: mock")
		return stt.NewMockProvider()
	case "auto":
		if strings.TrimSpace(cfg.DeepgramAPIKey) == "" {
			log.Printf("stt provider: mock (no deepgram key configured)")
			return stt.NewMockProvider()
		}
	default:
		log.Fatalf("invalid STT_PROVIDER: %q (expected auto|deepgram|mock)", cfg.STTProvider)
	}

	log.Printf("stt provider: deepgram")
	return stt.NewDeepgramProvider(stt.DeepgramConfig{
		APIKey:    cfg.DeepgramAPIKey,
		WSBaseURL: cfg.DeepgramWSBaseURL,
	})
}

func resolveTTSProvider(cfg config.Config) tts.Provider {
	mode := strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "ws":
		if strings.TrimSpace(cfg.TTSAPIKey) == "" {
			log.Fatalf("TTS_PROVIDER=ws but TTS_API_KEY is not set")
		}
	case "mock":
		log.Printf("tts provider: mock")
		return tts.NewMockProvider()
	case "auto":
		if strings.TrimSpace(cfg.TTSAPIKey) == "" {
			log.Printf("tts provider: mock (no tts key configured)")
			return tts.NewMockProvider()
		}
	default:
		log.Fatalf("invalid TTS_PROVIDER: %q (expected auto|ws|mock)", cfg.TTSProvider)
	}

	log.Printf("tts provider: websocket")
	return tts.NewWSProvider(tts.Config{
		APIKey:    cfg.TTSAPIKey,
		WSBaseURL: cfg.TTSWSBaseURL,
	})
}

func resolveSinks(ctx context.Context, cfg config.Config) (sinks.BookingSink, sinks.SMSSink) {
	var bookingSink sinks.BookingSink
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("booking sink: none configured, bookings will not be recorded")
		bookingSink = sinks.NoopBookingSink{}
	} else {
		sink, err := sinks.NewPostgresSink(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("booking sink init failed: %v", err)
		}
		bookingSink = sink
	}

	var smsSink sinks.SMSSink
	if strings.TrimSpace(cfg.SMSWebhookURL) == "" {
		log.Printf("sms sink: none configured, confirmations will not be texted")
		smsSink = sinks.NoopSMSSink{}
	} else {
		smsSink = sinks.NewHTTPSMSSink(cfg.SMSWebhookURL, cfg.SMSAPIKey)
	}

	return bookingSink, smsSink
}
