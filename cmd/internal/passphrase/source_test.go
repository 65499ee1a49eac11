package passphrase

import "testing"

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("SALE_TEST_PASSPHRASE", "correct horse")
	src := NewSource("SALE_TEST_PASSPHRASE", "")
	got, err := src.Get()
	if err != nil || got != "correct horse" {
		t.Fatalf("unexpected passphrase %q err=%v", got, err)
	}
	t.Setenv("SALE_TEST_PASSPHRASE", "changed")
	if again, _ := src.Get(); again != "correct horse" {
		t.Fatalf("expected cached value, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("SALE_TEST_PASSPHRASE", "  ")
	if _, err := NewSource("SALE_TEST_PASSPHRASE", "investor keystore").Get(); err == nil {
		t.Fatalf("expected blank passphrase to be rejected")
	}
}
