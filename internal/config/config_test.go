package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
http:
  addr: ":9090"
s3:
  receipts_bucket: receipts-test
payments:
  service_fee_cents: 50
  checkouts_per_minute: 4
stripe:
  currency: usd
pix:
  key: chave@exemplo.com
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTP.Addr)
	}
	if cfg.S3.ReceiptsBucket != "receipts-test" {
		t.Fatalf("unexpected receipts bucket: %s", cfg.S3.ReceiptsBucket)
	}
	if cfg.Payments.ServiceFeeCents != 50 {
		t.Fatalf("unexpected service fee: %d", cfg.Payments.ServiceFeeCents)
	}
	if cfg.Payments.CheckoutsPerMinute != 4 {
		t.Fatalf("unexpected checkouts/min: %d", cfg.Payments.CheckoutsPerMinute)
	}
	if cfg.Stripe.Currency != "usd" {
		t.Fatalf("unexpected currency: %s", cfg.Stripe.Currency)
	}
	if cfg.Pix.Key != "chave@exemplo.com" {
		t.Fatalf("unexpected pix key: %s", cfg.Pix.Key)
	}

	if cfg.S3.EbooksBucket != "ebooks" {
		t.Fatalf("ebooks bucket default should stay: %s", cfg.S3.EbooksBucket)
	}
	if cfg.Payments.CheckoutsPer10Sec != 3 {
		t.Fatalf("checkouts/10s default should stay 3: %d", cfg.Payments.CheckoutsPer10Sec)
	}
	if cfg.Auth.JWTAccessTTL.String() != "15m0s" {
		t.Fatalf("unexpected jwt ttl default: %s", cfg.Auth.JWTAccessTTL)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.Payments.ServiceFeeCents != 93 {
		t.Fatalf("unexpected default service fee: %d", cfg.Payments.ServiceFeeCents)
	}
	if cfg.Stripe.Currency != "brl" {
		t.Fatalf("unexpected default currency: %s", cfg.Stripe.Currency)
	}
	if cfg.S3.ReceiptsBucket != "pix-receipts" || cfg.S3.EbooksBucket != "ebooks" {
		t.Fatalf("unexpected bucket defaults: %s / %s", cfg.S3.ReceiptsBucket, cfg.S3.EbooksBucket)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_abc")
	t.Setenv("SERVICE_FEE_CENTS", "120")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Stripe.SecretKey != "sk_test_abc" {
		t.Fatalf("stripe secret env override not applied")
	}
	if cfg.Payments.ServiceFeeCents != 120 {
		t.Fatalf("service fee env override not applied: %d", cfg.Payments.ServiceFeeCents)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"S3_ENDPOINT",
		"S3_ACCESS_KEY",
		"S3_SECRET_KEY",
		"S3_RECEIPTS_BUCKET",
		"S3_EBOOKS_BUCKET",
		"S3_USE_SSL",
		"JWT_SECRET",
		"JWT_ACCESS_TTL",
		"STRIPE_SECRET_KEY",
		"STRIPE_WEBHOOK_SECRET",
		"STRIPE_SUCCESS_URL",
		"STRIPE_CANCEL_URL",
		"STRIPE_CURRENCY",
		"SERVICE_FEE_CENTS",
		"CHECKOUTS_PER_MINUTE",
		"CHECKOUTS_PER_10SEC",
		"PIX_KEY",
		"PIX_MERCHANT",
		"PIX_PAYLOAD",
		"NOTIFY_TELEGRAM_TOKEN",
		"NOTIFY_REVIEWER_CHAT_ID",
	} {
		t.Setenv(key, "")
	}
}
