package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/auditlife/auditlife/internal/app"
	"github.com/auditlife/auditlife/internal/extraction"
	"github.com/auditlife/auditlife/internal/notion"
	"github.com/auditlife/auditlife/internal/store"
	"github.com/auditlife/auditlife/internal/util"
	"github.com/auditlife/auditlife/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for AuditLife state data
	DefaultStateDir = "/var/lib/auditlife"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "auditlife.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cfg := app.Config{
		Transport:      *flags.transport,
		WebhookAddr:    *flags.webhookAddr,
		AllowFrom:      splitAllowList(*flags.allowFrom),
		StateDir:       *flags.stateDir,
		StoreOpts:      buildStoreOptions(flags),
		WhatsAppOpts:   buildWhatsAppOptions(flags),
		ExtractionOpts: buildExtractionOptions(flags),
		NotionOpts:     buildNotionOptions(flags),
	}

	slog.Info("Bootstrapping AuditLife with configured modules")
	slog.Debug("Final configuration",
		"transport", *flags.transport,
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"allow_list_size", len(cfg.AllowFrom))
	if err := app.Run(cfg); err != nil {
		slog.Error("AuditLife failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("AuditLife exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	NotionToken     string
	FactsDatabaseID string
	SummaryParentID string
	AllowFrom       string
	Transport       string
	WebhookAddr     string
	NumericCode     bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput        *string
	numeric         *bool
	stateDir        *string
	dbDSN           *string
	openaiKey       *string
	notionToken     *string
	factsDatabaseID *string
	summaryParentID *string
	allowFrom       *string
	transport       *string
	webhookAddr     *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("AUDITLIFE_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		NotionToken:     os.Getenv("NOTION_API_KEY"),
		FactsDatabaseID: os.Getenv("NOTION_FACTS_DATABASE_ID"),
		SummaryParentID: os.Getenv("NOTION_SUMMARY_PARENT_PAGE_ID"),
		AllowFrom:       os.Getenv("ALLOWED_SENDERS"),
		Transport:       os.Getenv("AUDITLIFE_TRANSPORT"),
		WebhookAddr:     os.Getenv("WEBHOOK_ADDR"),
		NumericCode:     util.ParseBoolEnv("AUDITLIFE_NUMERIC_CODE", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AUDITLIFE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Default to SQLite in the state directory when no database URL is provided
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"AUDITLIFE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"NOTION_API_KEY_SET", config.NotionToken != "",
		"NOTION_FACTS_DATABASE_ID_SET", config.FactsDatabaseID != "",
		"NOTION_SUMMARY_PARENT_PAGE_ID_SET", config.SummaryParentID != "",
		"ALLOWED_SENDERS_SET", config.AllowFrom != "",
		"AUDITLIFE_TRANSPORT", config.Transport)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:        flag.String("qr-output", "", "path to write login QR code"),
		numeric:         flag.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $AUDITLIFE_NUMERIC_CODE)"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for AuditLife data (overrides $AUDITLIFE_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN for WhatsApp and conversation state (overrides $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		notionToken:     flag.String("notion-api-key", config.NotionToken, "Notion integration token (overrides $NOTION_API_KEY)"),
		factsDatabaseID: flag.String("notion-facts-db", config.FactsDatabaseID, "Notion facts database id (overrides $NOTION_FACTS_DATABASE_ID)"),
		summaryParentID: flag.String("notion-summary-parent", config.SummaryParentID, "Notion parent page id for summary pages (overrides $NOTION_SUMMARY_PARENT_PAGE_ID)"),
		allowFrom:       flag.String("allow-from", config.AllowFrom, "comma-separated allowed sender numbers (overrides $ALLOWED_SENDERS)"),
		transport:       flag.String("transport", config.Transport, "messaging transport: whatsapp or twilio (overrides $AUDITLIFE_TRANSPORT)"),
		webhookAddr:     flag.String("webhook-addr", config.WebhookAddr, "Twilio inbound webhook listen address (overrides $WEBHOOK_ADDR)"),
	}

	flag.Parse()

	// Follow a moved state directory when the DSN was left at its default
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

func buildExtractionOptions(flags Flags) []extraction.Option {
	var opts []extraction.Option
	if *flags.openaiKey != "" {
		opts = append(opts, extraction.WithAPIKey(*flags.openaiKey))
	}
	return opts
}

func buildNotionOptions(flags Flags) []notion.Option {
	var opts []notion.Option
	if *flags.notionToken != "" {
		opts = append(opts, notion.WithToken(*flags.notionToken))
	}
	if *flags.summaryParentID != "" {
		opts = append(opts, notion.WithSummaryParentID(*flags.summaryParentID))
	}
	if *flags.factsDatabaseID != "" {
		opts = append(opts, notion.WithFactsDatabaseID(*flags.factsDatabaseID))
	}
	return opts
}

func splitAllowList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
