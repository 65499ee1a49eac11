package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crowdsale/native/crowdsale"
)

func TestDispatcherSignsPayload(t *testing.T) {
	var (
		mu        sync.Mutex
		signature string
		eventType string
		payload   EventPayload
		rawBody   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		defer mu.Unlock()
		rawBody = body
		_ = json.Unmarshal(body, &payload)
		signature = r.Header.Get("X-Crowdsale-Signature")
		eventType = r.Header.Get("X-Crowdsale-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	dispatcher.Emit(crowdsale.WrapEvent(crowdsale.WindowUpdatedEvent(10, 20)))
	waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return signature != ""
	}, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if signature != Sign([]byte("secret"), rawBody) {
		t.Fatalf("signature mismatch: %s", signature)
	}
	if eventType != crowdsale.EventTypeWindowUpdated || payload.Type != crowdsale.EventTypeWindowUpdated {
		t.Fatalf("unexpected event type header=%s body=%s", eventType, payload.Type)
	}
	if payload.Attributes["finish"] != "20" || payload.DeliveryID == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(crowdsale.WrapEvent(crowdsale.ClockSetEvent(5)))
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("secret")); err == nil {
		t.Fatalf("expected endpoint to be required")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret to be required")
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
