package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auditlife/auditlife/internal/extraction"
	"github.com/auditlife/auditlife/internal/lockfile"
	"github.com/auditlife/auditlife/internal/messaging"
	"github.com/auditlife/auditlife/internal/notion"
	"github.com/auditlife/auditlife/internal/store"
	"github.com/auditlife/auditlife/internal/twiliowhatsapp"
	"github.com/auditlife/auditlife/internal/whatsapp"
	"github.com/auditlife/auditlife/internal/workflow"
)

// Transport names accepted by Config.Transport.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"

	// DefaultWebhookAddr is the default listen address for the Twilio inbound webhook.
	DefaultWebhookAddr = ":8080"
)

// Config carries the per-module options assembled by the command line entrypoint.
type Config struct {
	Transport   string   // TransportWhatsApp (default) or TransportTwilio
	WebhookAddr string   // Twilio inbound webhook listen address
	AllowFrom   []string // allowed sender numbers; empty admits everyone
	StateDir    string   // state directory; when set, an exclusive instance lock is taken on it

	StoreOpts      []store.Option
	WhatsAppOpts   []whatsapp.Option
	TwilioOpts     []twiliowhatsapp.Option
	ExtractionOpts []extraction.Option
	NotionOpts     []notion.Option
}

// Run assembles the modules and processes inbound events until the process
// receives SIGINT or SIGTERM.
func Run(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StateDir != "" {
		lock, err := lockfile.AcquireLock(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("failed to acquire instance lock: %w", err)
		}
		defer lock.Release()
	}

	states, err := buildStore(cfg.StoreOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize conversation store: %w", err)
	}
	defer states.Close()

	extractor, err := extraction.NewClient(cfg.ExtractionOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction client: %w", err)
	}

	resolver, err := notion.NewResolver(cfg.NotionOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize Notion resolver: %w", err)
	}

	service, webhook, err := buildMessaging(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging service: %w", err)
	}

	orchestrator := workflow.NewOrchestrator(states, extractor, extractor, resolver, service)
	dispatcher := NewDispatcher(orchestrator, service, cfg.AllowFrom)
	if len(cfg.AllowFrom) == 0 {
		slog.Warn("No sender allow-list configured; all senders will be accepted")
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer service.Stop()

	var server *http.Server
	if webhook != nil {
		addr := cfg.WebhookAddr
		if addr == "" {
			addr = DefaultWebhookAddr
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/twilio/webhook", webhook.TwilioWebhookHandler)
		server = &http.Server{Addr: addr, Handler: mux}
		go func() {
			slog.Info("Twilio webhook server listening", "addr", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Twilio webhook server failed", "error", err)
				stop()
			}
		}()
	}

	go drainReceipts(service)

	slog.Info("AuditLife running", "transport", transportName(cfg.Transport))
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received")
			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Webhook server shutdown failed", "error", err)
				}
				cancel()
			}
			return nil
		case resp, ok := <-service.Responses():
			if !ok {
				return nil
			}
			// Each event runs on its own goroutine; per-conversation
			// ordering is the user's own send order in practice, and the
			// state machine rejects stale actions regardless.
			go dispatcher.HandleResponse(context.Background(), resp)
		}
	}
}

// buildStore selects a backend by DSN: none configured means in-memory.
func buildStore(opts []store.Option) (store.ConversationStore, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch store.DetectDSNType(cfg.DSN) {
	case "postgres":
		slog.Debug("Using PostgreSQL conversation store")
		return store.NewPostgresStore(opts...)
	case "sqlite":
		slog.Debug("Using SQLite conversation store", "path", cfg.DSN)
		return store.NewSQLiteStore(opts...)
	default:
		slog.Debug("No DSN configured, using in-memory conversation store")
		return store.NewInMemoryStore(), nil
	}
}

// buildMessaging constructs the configured transport. The Twilio transport
// additionally returns itself for webhook registration.
func buildMessaging(cfg Config) (messaging.Service, *messaging.TwilioService, error) {
	switch transportName(cfg.Transport) {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(cfg.TwilioOpts...)
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	default:
		client, err := whatsapp.NewClient(cfg.WhatsAppOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	}
}

func transportName(name string) string {
	if name == TransportTwilio {
		return TransportTwilio
	}
	return TransportWhatsApp
}

// drainReceipts consumes delivery receipts so the channel never backs up.
func drainReceipts(service messaging.Service) {
	for receipt := range service.Receipts() {
		slog.Debug("Delivery receipt", "to", receipt.To, "status", receipt.Status)
	}
}
