package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kraken-dca/internal/config"
)

type capturedRequest struct {
	path    string
	headers http.Header
	body    string
}

func newFakeNtfy(t *testing.T, status int, captured *[]capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = append(*captured, capturedRequest{path: r.URL.Path, headers: r.Header.Clone(), body: string(body)})
		w.WriteHeader(status)
		_, _ = w.Write([]byte("rate limited"))
	}))
}

func TestSend_HeadersAndBody(t *testing.T) {
	var captured []capturedRequest
	srv := newFakeNtfy(t, http.StatusOK, &captured)
	defer srv.Close()

	client := NewClient(config.NotifyConfig{URL: srv.URL + "/", Topic: "my-dca", Token: "tk_123", Click: "https://pro.kraken.com"}, nil)
	err := client.Send(context.Background(), Message{
		Title:    "hello",
		Body:     "world",
		Tags:     []string{"kraken", "dca"},
		Priority: 4,
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if len(captured) != 1 {
		t.Fatalf("expected one request, got %d", len(captured))
	}
	req := captured[0]
	if req.path != "/my-dca" {
		t.Errorf("expected topic path, got %q", req.path)
	}
	if req.body != "world" {
		t.Errorf("unexpected body %q", req.body)
	}
	checks := map[string]string{
		"Title":         "hello",
		"Tags":          "kraken,dca",
		"Priority":      "4",
		"Click":         "https://pro.kraken.com",
		"Authorization": "Bearer tk_123",
	}
	for header, want := range checks {
		if got := req.headers.Get(header); got != want {
			t.Errorf("header %s: got %q want %q", header, got, want)
		}
	}
}

func TestSend_Non2xxIsDeliveryError(t *testing.T) {
	var captured []capturedRequest
	srv := newFakeNtfy(t, http.StatusTooManyRequests, &captured)
	defer srv.Close()

	err := NewClient(config.NotifyConfig{URL: srv.URL, Topic: "t"}, nil).Send(context.Background(), Message{Title: "x"})
	var delivery *DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("expected DeliveryError, got %T: %v", err, err)
	}
	if delivery.StatusCode != http.StatusTooManyRequests || delivery.Body != "rate limited" {
		t.Errorf("unexpected delivery error %+v", delivery)
	}
	if len(captured) != 1 {
		t.Errorf("expected a single delivery attempt, got %d", len(captured))
	}
}

func TestNotify_SeverityTable(t *testing.T) {
	cases := []struct {
		severity Severity
		prefix   string
		tag      string
		priority string
	}{
		{SeveritySuccess, "✅", "white_check_mark", "3"},
		{SeverityWarning, "⚠️", "warning", "4"},
		{SeverityError, "🚨", "rotating_light", "5"},
		{SeverityInfo, "ℹ️", "information_source", "3"},
	}

	for _, tc := range cases {
		t.Run(tc.severity.String(), func(t *testing.T) {
			var captured []capturedRequest
			srv := newFakeNtfy(t, http.StatusOK, &captured)
			defer srv.Close()

			client := NewClient(config.NotifyConfig{URL: srv.URL, Topic: "t"}, nil)
			if err := client.Notify(context.Background(), tc.severity, Message{Title: "Kraken DCA", Tags: []string{"kraken"}}); err != nil {
				t.Fatalf("Notify returned error: %v", err)
			}
			h := captured[0].headers
			if !strings.HasPrefix(h.Get("Title"), tc.prefix+" ") {
				t.Errorf("expected title prefix %q, got %q", tc.prefix, h.Get("Title"))
			}
			if h.Get("Tags") != "kraken,"+tc.tag {
				t.Errorf("expected tags kraken,%s got %q", tc.tag, h.Get("Tags"))
			}
			if h.Get("Priority") != tc.priority {
				t.Errorf("expected priority %s, got %q", tc.priority, h.Get("Priority"))
			}
		})
	}
}

func TestDecorate_DoesNotMutateCallerTags(t *testing.T) {
	tags := make([]string, 1, 4)
	tags[0] = "kraken"
	msg := Decorate(SeverityWarning, Message{Title: "t", Tags: tags})

	if len(tags) != 1 || tags[:2][1] != "" {
		t.Fatalf("caller tags modified: %v", tags[:2])
	}
	if len(msg.Tags) != 2 {
		t.Fatalf("expected severity tag appended, got %v", msg.Tags)
	}
}
