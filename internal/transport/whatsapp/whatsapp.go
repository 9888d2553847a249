// Package whatsapp sends messages through the WhatsApp Cloud API
// (graph.facebook.com). It implements transport.Sender and classifies every
// failure at this boundary: network errors, 408/429 and 5xx responses are
// transient, all other non-2xx responses are permanent.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wablast/internal/transport"
	"wablast/pkg/logx"
)

type Config struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Timeout       time.Duration
}

const defaultBaseURL = "https://graph.facebook.com/v17.0"

type Sender struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("whatsapp: token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone_number_id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}, nil
}

// payload mirrors the Cloud API message object. Text and Image are mutually
// exclusive; when an image is attached the caption carries the text.
type payload struct {
	MessagingProduct string     `json:"messaging_product"`
	RecipientType    string     `json:"recipient_type"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             *textPart  `json:"text,omitempty"`
	Image            *imagePart `json:"image,omitempty"`
}

type textPart struct {
	Body string `json:"body"`
}

type imagePart struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (s *Sender) Send(ctx context.Context, to transport.Target, text string, att *transport.Attachment) error {
	p := payload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to.Identity,
		Type:             "text",
		Text:             &textPart{Body: text},
	}
	if att != nil {
		// The Cloud API fetches images by link; a local path cannot be
		// delivered, and quietly sending text-only would misreport success.
		if att.URL == "" {
			return transport.Permanent(errors.New("whatsapp: attachment requires a hosted image url"))
		}
		p.Type = "image"
		p.Text = nil
		p.Image = &imagePart{Link: att.URL, Caption: text}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return transport.Permanent(fmt.Errorf("whatsapp: encoding payload: %w", err))
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return transport.Permanent(fmt.Errorf("whatsapp: building request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		// Network-level failure; includes timeouts.
		return transport.Transient(fmt.Errorf("whatsapp: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.log.Debug("message accepted", logx.String("to", to.Identity))
		return nil
	}

	msg := readAPIError(resp.Body)
	err = fmt.Errorf("whatsapp: %s", msg)
	se := &transport.SendError{Class: classify(resp.StatusCode), StatusCode: resp.StatusCode, Err: err}
	return se
}

func classify(status int) transport.ErrorClass {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return transport.ClassTransient
	case status >= 500:
		return transport.ClassTransient
	default:
		return transport.ClassPermanent
	}
}

func readAPIError(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return "no response body"
	}
	var ae apiError
	if json.Unmarshal(b, &ae) == nil && ae.Error.Message != "" {
		return fmt.Sprintf("%s (code %d)", ae.Error.Message, ae.Error.Code)
	}
	return strings.TrimSpace(string(b))
}
