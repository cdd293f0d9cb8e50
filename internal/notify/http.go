// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultHTTPEndpoint is the SendGrid v3 send endpoint.
const DefaultHTTPEndpoint = "https://api.sendgrid.com/v3/mail/send"

// HTTPConfig configures delivery through a SendGrid-compatible JSON API.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	From     string
	FromName string
}

// HTTPNotifier posts messages to a SendGrid-compatible mail API.
type HTTPNotifier struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPNotifier validates cfg and creates an HTTPNotifier. A nil client
// gets a default with a 15 second timeout.
func NewHTTPNotifier(cfg HTTPConfig, client *http.Client) (*HTTPNotifier, error) {
	if cfg.APIKey == "" || cfg.From == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("mail api key and sender address are required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultHTTPEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPNotifier{cfg: cfg, client: client}, nil
}

type sendAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendPersonalization struct {
	To []sendAddress `json:"to"`
}

type sendContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []sendPersonalization `json:"personalizations"`
	From             sendAddress           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []sendContent         `json:"content"`
}

// Send posts msg and treats any non-2xx status as failure.
func (n *HTTPNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendRequest{
		Personalizations: []sendPersonalization{{To: []sendAddress{{Email: msg.To}}}},
		From:             sendAddress{Email: n.cfg.From, Name: n.cfg.FromName},
		Subject:          msg.Subject,
		Content:          []sendContent{{Type: "text/html", Value: msg.HTML}},
	})
	if err != nil {
		return oops.Code("NOTIFY_HTTP_FAILED").With("kind", msg.Kind).Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return oops.Code("NOTIFY_HTTP_FAILED").With("kind", msg.Kind).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The API key only ever travels in this header.
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)

	res, err := n.client.Do(req)
	if err != nil {
		return oops.Code("NOTIFY_HTTP_FAILED").With("kind", msg.Kind).Wrap(err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return oops.Code("NOTIFY_HTTP_FAILED").
			With("kind", msg.Kind).
			With("status", res.StatusCode).
			Errorf("mail api status %d: %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
