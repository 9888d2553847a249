package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"wablast/internal/transport"
	"wablast/pkg/logx"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) (*Sender, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(Config{
		BaseURL:       srv.URL,
		Token:         "test-token",
		PhoneNumberID: "12345",
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s, srv
}

func TestSendText(t *testing.T) {
	t.Parallel()

	var got payload
	s, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/12345/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	err := s.Send(context.Background(), transport.Target{Identity: "+15551234567"}, "Hi Alice", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.MessagingProduct != "whatsapp" || got.RecipientType != "individual" {
		t.Fatalf("payload = %+v", got)
	}
	if got.To != "+15551234567" || got.Type != "text" {
		t.Fatalf("payload = %+v", got)
	}
	if got.Text == nil || got.Text.Body != "Hi Alice" {
		t.Fatalf("text = %+v", got.Text)
	}
	if got.Image != nil {
		t.Fatal("image part set on a text message")
	}
}

func TestSendImage(t *testing.T) {
	t.Parallel()

	var got payload
	s, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	att := &transport.Attachment{URL: "https://cdn.example/pic.jpg"}
	if err := s.Send(context.Background(), transport.Target{Identity: "+1555"}, "caption here", att); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Type != "image" || got.Text != nil {
		t.Fatalf("payload = %+v", got)
	}
	if got.Image == nil || got.Image.Link != "https://cdn.example/pic.jpg" || got.Image.Caption != "caption here" {
		t.Fatalf("image = %+v", got.Image)
	}
}

func TestSendLocalAttachmentRejected(t *testing.T) {
	t.Parallel()

	calls := 0
	s, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	att := &transport.Attachment{Path: "/tmp/pic.jpg"}
	err := s.Send(context.Background(), transport.Target{Identity: "+1555"}, "caption", att)
	if err == nil {
		t.Fatal("local-path attachment accepted")
	}
	if transport.Classify(err) != transport.ClassPermanent {
		t.Fatalf("classified %v, want permanent", transport.Classify(err))
	}
	if calls != 0 {
		t.Fatalf("API called %d times; a text-only fallback must not go out", calls)
	}
}

func TestSendStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   transport.ErrorClass
	}{
		{"throttled", http.StatusTooManyRequests, `{"error":{"message":"rate limit hit","code":130429}}`, transport.ClassTransient},
		{"server error", http.StatusInternalServerError, ``, transport.ClassTransient},
		{"bad gateway", http.StatusBadGateway, ``, transport.ClassTransient},
		{"request timeout", http.StatusRequestTimeout, ``, transport.ClassTransient},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid recipient","code":131026}}`, transport.ClassPermanent},
		{"unauthorized", http.StatusUnauthorized, ``, transport.ClassPermanent},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			err := s.Send(context.Background(), transport.Target{Identity: "+1"}, "x", nil)
			if err == nil {
				t.Fatal("expected error")
			}
			var se *transport.SendError
			if !errors.As(err, &se) {
				t.Fatalf("error is %T, want *transport.SendError", err)
			}
			if se.Class != tt.want {
				t.Fatalf("class = %v, want %v", se.Class, tt.want)
			}
			if se.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", se.StatusCode, tt.status)
			}
		})
	}
}

func TestSendNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	s, srv := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // connection refused from here on

	err := s.Send(context.Background(), transport.Target{Identity: "+1"}, "x", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if transport.Classify(err) != transport.ClassTransient {
		t.Fatalf("network error classified %v, want transient", transport.Classify(err))
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{PhoneNumberID: "1"}, logx.Nop()); err == nil {
		t.Fatal("missing token accepted")
	}
	if _, err := New(Config{Token: "t"}, logx.Nop()); err == nil {
		t.Fatal("missing phone_number_id accepted")
	}
}
