package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Quote is one observation of a price.
type Quote struct {
	Rate      *big.Rat
	Timestamp time.Time
}

// Source resolves a price quote for a currency pair.
type Source interface {
	Name() string
	Fetch(ctx context.Context, base, quote string) (Quote, error)
}

// StaticSource serves fixed rates keyed by "BASE/QUOTE". It backs tests and
// manually operated sales.
type StaticSource struct {
	Label string
	Rates map[string]string
	Now   func() time.Time
}

func (s *StaticSource) Name() string { return label(s.Label, "static") }

func (s *StaticSource) Fetch(ctx context.Context, base, quote string) (Quote, error) {
	_ = ctx
	raw, ok := s.Rates[pairKey(base, quote)]
	if !ok {
		return Quote{}, fmt.Errorf("static: no rate for %s", pairKey(base, quote))
	}
	rate, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
	if !ok {
		return Quote{}, fmt.Errorf("static: malformed rate %q", raw)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return Quote{Rate: rate, Timestamp: now()}, nil
}

// HTTPSource polls a JSON price endpoint:
//
//	GET {endpoint}?base=EOS&quote=USD  ->  {"rate":"5.01","timestamp":"2024-01-02T15:04:05Z"}
type HTTPSource struct {
	label    string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSource builds an HTTP source. A nil client gets a 10s timeout.
func NewHTTPSource(name, endpoint, apiKey string, client *http.Client) (*HTTPSource, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("http source %q: endpoint required", name)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("http source %q: %w", name, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{label: label(name, "http"), endpoint: endpoint, apiKey: apiKey, client: client}, nil
}

func (s *HTTPSource) Name() string { return s.label }

type httpQuote struct {
	Rate      string    `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *HTTPSource) Fetch(ctx context.Context, base, quote string) (Quote, error) {
	target, err := url.Parse(s.endpoint)
	if err != nil {
		return Quote{}, err
	}
	query := target.Query()
	query.Set("base", strings.ToUpper(strings.TrimSpace(base)))
	query.Set("quote", strings.ToUpper(strings.TrimSpace(quote)))
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("%s: status %d: %s", s.label, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload httpQuote
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("%s: decode: %w", s.label, err)
	}
	rate, ok := new(big.Rat).SetString(strings.TrimSpace(payload.Rate))
	if !ok {
		return Quote{}, fmt.Errorf("%s: malformed rate %q", s.label, payload.Rate)
	}
	return Quote{Rate: rate, Timestamp: payload.Timestamp}, nil
}

// Build creates a source from configuration.
func Build(name, typ, endpoint, apiKey string, rates map[string]string, client *http.Client) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "http":
		return NewHTTPSource(name, endpoint, apiKey, client)
	case "static":
		return &StaticSource{Label: name, Rates: rates}, nil
	default:
		return nil, fmt.Errorf("unknown rate source type %q", typ)
	}
}

func pairKey(base, quote string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + "/" + strings.ToUpper(strings.TrimSpace(quote))
}

func label(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	return fallback
}
