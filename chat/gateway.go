/*
gateway.go - HTTP client for the chat gateway

PURPOSE:
  Outbound half of the chat collaborator. The gateway (a WhatsApp bridge)
  delivers inbound events to POST /api/events and exposes this small JSON API
  for everything the engine sends back.

ENDPOINTS (relative to BaseURL):
  POST /messages                      {chatId, text, mentions[]}
  POST /messages/delete               {chatId, messageId}
  GET  /chats/{chatId}/messages?limit=N   -> [Event]

AUTH:
  "Authorization: Bearer <token>" when a token is configured.
*/
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/generic"
)

const defaultTimeout = 15 * time.Second

// Client is the full chat-platform surface the engine uses.
type Client interface {
	booking.Notifier
	booking.HistorySource
}

var (
	_ Client = (*Gateway)(nil)
	_ Client = LogNotifier{}
)

// Gateway implements booking.Notifier, booking.HistorySource and report.Sender.
type Gateway struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

func NewGateway(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat gateway error: %d body=%s", e.Status, e.Body)
}

type sendRequest struct {
	ChatID   string   `json:"chatId"`
	Text     string   `json:"text"`
	Mentions []string `json:"mentions,omitempty"`
}

type deleteRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

func (g *Gateway) SendText(ctx context.Context, chatID generic.ChatID, text string) error {
	return g.post(ctx, "/messages", sendRequest{ChatID: string(chatID), Text: text})
}

func (g *Gateway) SendTextWithMention(ctx context.Context, chatID generic.ChatID, text, mentionID string) error {
	return g.post(ctx, "/messages", sendRequest{
		ChatID:   string(chatID),
		Text:     text,
		Mentions: []string{mentionID},
	})
}

func (g *Gateway) DeleteMessage(ctx context.Context, chatID generic.ChatID, messageID generic.MessageID) error {
	return g.post(ctx, "/messages/delete", deleteRequest{ChatID: string(chatID), MessageID: string(messageID)})
}

// FetchRecentMessages returns up to limit messages, oldest first.
func (g *Gateway) FetchRecentMessages(ctx context.Context, chatID generic.ChatID, limit int) ([]booking.Event, error) {
	u := fmt.Sprintf("%s/chats/%s/messages?limit=%s",
		g.baseURL, url.PathEscape(string(chatID)), strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var events []booking.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", chatID, err)
	}
	for i := range events {
		if events[i].ChatID == "" {
			events[i].ChatID = chatID
		}
	}
	return events, nil
}

func (g *Gateway) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (g *Gateway) do(req *http.Request) (*http.Response, error) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn().Err(err).Str("path", req.URL.Path).Msg("chat gateway request failed")
		return nil, err
	}
	g.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("chat gateway")

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return resp, nil
}
