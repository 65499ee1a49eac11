package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crowdsale/crypto"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crowdsaled.toml")
	writeFile(t, path, `ListenAddress = "127.0.0.1:9090"
DataDir = "data"
AssetsDSN = "postgres://sale@db/assets"
Environment = "prod"

[auth]
JWTSecretEnv = "SALE_TEST_JWT"
JWTSecret = "fallback"
Issuer = "crowdsale"
SignatureSkew = "90s"

[rate_limits.admin]
RatePerSecond = 2.5
Burst = 4

[telemetry]
Endpoint = "collector:4318"
Traces = true
SampleRatio = 0.25

[logging]
Level = "debug"
File = "/var/log/crowdsaled.log"
MaxSizeMB = 50

[dispatcher]
Interval = "2s"

[ratefeed]
Enabled = true
Schedule = "0 0 * * *"
MinFeeds = 2

[[ratefeed.sources]]
Name = "fixed"
Type = "static"
Rates = { "EOS/USD" = "5.00", "ETH/USD" = "2000" }

[[ratefeed.sources]]
Name = "desk"
Type = "http"
Endpoint = "https://prices.example/v1/rate"
APIKeyEnv = "DESK_KEY"

[webhook]
URL = "https://hooks.example/sale"
SecretEnv = "HOOK_SECRET"

[reports]
Dir = "reports"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9090" || cfg.Environment != "prod" {
		t.Fatalf("unexpected top-level values %+v", cfg)
	}
	if cfg.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir must resolve relative to config, got %s", cfg.DataDir)
	}
	if cfg.SaleManifest != filepath.Join(dir, "sale.yaml") {
		t.Fatalf("unexpected manifest default %s", cfg.SaleManifest)
	}
	if cfg.NonceDB != filepath.Join(dir, "data", "nonces.db") {
		t.Fatalf("unexpected nonce db %s", cfg.NonceDB)
	}
	if cfg.Auth.SignatureSkew != 90*time.Second {
		t.Fatalf("unexpected skew %s", cfg.Auth.SignatureSkew)
	}
	if limit := cfg.RateLimits["admin"]; limit.RatePerSecond != 2.5 || limit.Burst != 4 {
		t.Fatalf("unexpected admin limit %+v", limit)
	}
	if cfg.Dispatcher.Interval != 2*time.Second || cfg.Dispatcher.BatchSize != 100 {
		t.Fatalf("unexpected dispatcher %+v", cfg.Dispatcher)
	}
	if len(cfg.RateFeed.Sources) != 2 || cfg.RateFeed.Sources[0].Rates["EOS/USD"] != "5.00" {
		t.Fatalf("unexpected sources %+v", cfg.RateFeed.Sources)
	}
	if cfg.Reports.Schedule != "@hourly" {
		t.Fatalf("reports schedule default missing, got %q", cfg.Reports.Schedule)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.MaxSizeMB != 50 {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}

	t.Setenv("SALE_TEST_JWT", "from-env")
	if got := cfg.Auth.ResolveSecret(); got != "from-env" {
		t.Fatalf("expected env secret, got %q", got)
	}
	t.Setenv("SALE_TEST_JWT", "")
	if got := cfg.Auth.ResolveSecret(); got != "fallback" {
		t.Fatalf("expected inline secret, got %q", got)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "crowdsaled.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.ListenAddress != ":8080" || cfg.Dispatcher.Interval != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.Auth.JWTSecretEnv != "CROWDSALE_JWT_SECRET" {
		t.Fatalf("unexpected reloaded auth %+v", reloaded.Auth)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "Bogus = 1\n",
		"bad source type":  "[ratefeed]\nEnabled = true\n[[ratefeed.sources]]\nName = \"x\"\nType = \"grpc\"\n",
		"no sources":       "[ratefeed]\nEnabled = true\n",
		"bad schedule":     "[ratefeed]\nEnabled = true\nSchedule = \"whenever\"\n[[ratefeed.sources]]\nName = \"x\"\nType = \"static\"\n",
		"bad webhook":      "[webhook]\nURL = \"not a url\"\n",
		"telemetry target": "[telemetry]\nMetrics = true\n",
		"sample ratio":     "[telemetry]\nSampleRatio = 2.0\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "crowdsaled.toml")
			writeFile(t, path, contents)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	issuer := crypto.FormatAccount([20]byte{0x01})
	contract := crypto.FormatAccount([20]byte{0x02})
	notifier := crypto.FormatAccount([20]byte{0x03})
	team := crypto.FormatAccount([20]byte{0x04})

	path := filepath.Join(t.TempDir(), "sale.yaml")
	writeFile(t, path, strings.Join([]string{
		"issuer: " + issuer,
		"contract: " + contract,
		"notifier: " + notifier,
		"units:",
		"  base: 4,EOS",
		"  secondary: 4,ETH",
		"  usd: 2,USD",
		"  sale: 4,TKN",
		"cap: 10000.00 USD",
		"min_contribution: 1.0000 EOS",
		"units_per_usd: 10.0000 TKN",
		"allocations:",
		"  - to: " + team,
		"    amount: 5000.0000 TKN",
		"rate_window: 12h",
		"",
	}, "\n"))

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if manifest.RateWindow.Duration != 12*time.Hour {
		t.Fatalf("unexpected window %s", manifest.RateWindow.Duration)
	}
	params, err := manifest.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Issuer != [20]byte{0x01} || params.Notifier != [20]byte{0x03} {
		t.Fatalf("unexpected principals %+v", params)
	}
	if params.Cap.Int64() != 1_000_000 || params.MinContrib.Int64() != 10_000 || params.MaxContrib.Sign() != 0 {
		t.Fatalf("unexpected bounds cap=%s min=%s max=%s", params.Cap, params.MinContrib, params.MaxContrib)
	}
	if len(params.Allocations) != 1 || params.Allocations[0].Amount.Int64() != 50_000_000 {
		t.Fatalf("unexpected allocations %+v", params.Allocations)
	}
	price, err := manifest.SalePrice(params.SaleUnit)
	if err != nil || price.Amount.Int64() != 100_000 {
		t.Fatalf("unexpected sale price %v err=%v", price, err)
	}
}

func TestManifestRejectsUnitMismatch(t *testing.T) {
	m := &Manifest{
		Issuer:   crypto.FormatAccount([20]byte{0x01}),
		Contract: crypto.FormatAccount([20]byte{0x02}),
		Notifier: crypto.FormatAccount([20]byte{0x03}),
		Cap:      "10000.0000 USD",
	}
	m.Units.Base, m.Units.Secondary, m.Units.USD, m.Units.Sale = "4,EOS", "4,ETH", "2,USD", "4,TKN"
	if _, err := m.Params(); err == nil || !strings.Contains(err.Error(), "expected unit") {
		t.Fatalf("expected unit mismatch error, got %v", err)
	}
}

func TestParseUnit(t *testing.T) {
	unit, err := ParseUnit(" 4, eos ")
	if err != nil || unit.Code != "EOS" || unit.Decimals != 4 {
		t.Fatalf("unexpected unit %+v err=%v", unit, err)
	}
	for _, raw := range []string{"EOS", "x,EOS", "4,", "300,EOS"} {
		if _, err := ParseUnit(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
