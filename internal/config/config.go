package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string

	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/academy.db"

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string

	// Conversions API
	MetaPixelID       string
	MetaAccessToken   string
	MetaAPIVersion    string
	MetaTestEventCode string

	// Payment gateway
	PaystackPublicKey     string
	PaystackSecretKey     string
	PaystackWebhookSecret string

	// Spreadsheet store; empty URL disables it
	SheetAPIURL   string
	SheetAPIKey   string
	SheetLeadsTab string
	SheetAuditTab string

	// LeadBackend is "sheets", "sqlite" or "memory".
	LeadBackend string

	CorrelationTTL     time.Duration
	AuditRetentionDays int // 0 = keep forever
	AuditIncludeRawPII bool
	VendorTimeout      time.Duration
	PhoneCountryCode   string

	// Per-IP rate limit on public form routes; 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// Requests for RewriteHost's root path are served from RewriteTarget.
	RewriteHost   string
	RewriteTarget string

	// SiteDir holds static pages served outside /api. Optional.
	SiteDir string
}

// Keys that may be set by flags as well as the environment.
const (
	KeyHTTPAddr = "ACADEMY_HTTP_ADDR"
	KeyEnvFile  = "ACADEMY_ENV_FILE"
)

// Defaults registers default values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault("ACADEMY_ENV", "dev")
	v.SetDefault("ACADEMY_DB_PATH", "./data/academy.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_OUTPUT", "stderr")
	v.SetDefault("META_API_VERSION", "v18.0")
	v.SetDefault("SHEET_LEADS_TAB", "Leads")
	v.SetDefault("SHEET_AUDIT_TAB", "ConversionLog")
	v.SetDefault("CORRELATION_TTL_MINUTES", 30)
	v.SetDefault("AUDIT_RETENTION_DAYS", 90)
	v.SetDefault("AUDIT_INCLUDE_RAW_PII", false)
	v.SetDefault("VENDOR_TIMEOUT_SECONDS", 10)
	v.SetDefault("PHONE_COUNTRY_CODE", "234")
	v.SetDefault("RATE_LIMIT_RPS", 2.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
}

// FromEnv reads the configuration from the process environment.
func FromEnv() Config {
	v := viper.New()
	v.AutomaticEnv()
	Defaults(v)
	return Load(v)
}

// Load builds a Config from v, which must already have defaults and any
// flag bindings applied.
func Load(v *viper.Viper) Config {
	env := strings.ToLower(v.GetString("ACADEMY_ENV"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	sheetURL := strings.TrimSpace(v.GetString("SHEET_API_URL"))
	backend := strings.ToLower(strings.TrimSpace(v.GetString("LEAD_BACKEND")))
	switch backend {
	case "sheets", "sqlite", "memory":
	default:
		backend = "sqlite"
		if sheetURL != "" {
			backend = "sheets"
		}
	}

	return Config{
		HTTPAddr: v.GetString(KeyHTTPAddr),
		Env:      env,
		DBPath:   v.GetString("ACADEMY_DB_PATH"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
		LogOutput: v.GetString("LOG_OUTPUT"),

		MetaPixelID:       strings.TrimSpace(v.GetString("META_PIXEL_ID")),
		MetaAccessToken:   strings.TrimSpace(v.GetString("META_ACCESS_TOKEN")),
		MetaAPIVersion:    v.GetString("META_API_VERSION"),
		MetaTestEventCode: v.GetString("META_TEST_EVENT_CODE"),

		PaystackPublicKey:     v.GetString("PAYSTACK_PUBLIC_KEY"),
		PaystackSecretKey:     strings.TrimSpace(v.GetString("PAYSTACK_SECRET_KEY")),
		PaystackWebhookSecret: webhookSecret(v),

		SheetAPIURL:   sheetURL,
		SheetAPIKey:   v.GetString("SHEET_API_KEY"),
		SheetLeadsTab: v.GetString("SHEET_LEADS_TAB"),
		SheetAuditTab: v.GetString("SHEET_AUDIT_TAB"),

		LeadBackend: backend,

		CorrelationTTL:     time.Duration(nonNegative(v.GetInt("CORRELATION_TTL_MINUTES"), 30)) * time.Minute,
		AuditRetentionDays: nonNegative(v.GetInt("AUDIT_RETENTION_DAYS"), 90),
		AuditIncludeRawPII: v.GetBool("AUDIT_INCLUDE_RAW_PII"),
		VendorTimeout:      time.Duration(nonNegative(v.GetInt("VENDOR_TIMEOUT_SECONDS"), 10)) * time.Second,
		PhoneCountryCode:   v.GetString("PHONE_COUNTRY_CODE"),

		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: nonNegative(v.GetInt("RATE_LIMIT_BURST"), 10),

		RewriteHost:   strings.ToLower(strings.TrimSpace(v.GetString("REWRITE_HOST"))),
		RewriteTarget: v.GetString("REWRITE_TARGET"),

		SiteDir: v.GetString("SITE_DIR"),
	}
}

// webhookSecret falls back to the secret key, which is what the gateway signs
// webhooks with unless a dedicated secret is configured.
func webhookSecret(v *viper.Viper) string {
	if s := strings.TrimSpace(v.GetString("PAYSTACK_WEBHOOK_SECRET")); s != "" {
		return s
	}
	return strings.TrimSpace(v.GetString("PAYSTACK_SECRET_KEY"))
}

func nonNegative(n, def int) int {
	if n < 0 {
		return def
	}
	return n
}
