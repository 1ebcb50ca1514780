package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Channel senders. A nil sender on the dispatcher means the provider
// credentials were absent or malformed at startup and every attempt on
// that channel short-circuits to NotConfigured.

type EmailSender interface {
	SendMail(ctx context.Context, to, subject, html string) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

type PushSender interface {
	SendPush(ctx context.Context, tokens []string, title, body string) (int, error)
}

type RealtimeSender interface {
	SendToUser(userID string, payload any) error
}

// SMTPEmailSender delivers HTML mail over plain-auth SMTP.
type SMTPEmailSender struct {
	Host     string
	Port     string
	From     string
	Password string
}

func (s *SMTPEmailSender) SendMail(_ context.Context, to, subject, html string) (string, error) {
	msg := []byte("From: " + s.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n" +
		"<html><body>" + html + "</body></html>")
	auth := smtp.PlainAuth("", s.From, s.Password, s.Host)
	if err := smtp.SendMail(s.Host+":"+s.Port, auth, s.From, []string{to}, msg); err != nil {
		return "", err
	}
	// smtp exposes no provider message id; synthesize one for the log
	return "smtp-" + uuid.NewString(), nil
}

// TwilioSMSSender sends through the Twilio Messages API.
type TwilioSMSSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSMSSender(accountSID, authToken, from string) *TwilioSMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSMSSender{client: client, from: from}
}

func (t *TwilioSMSSender) SendSMS(_ context.Context, to, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)
	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", err
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio: message accepted without sid")
	}
	return *resp.Sid, nil
}

// HTTPPushSender posts JSON to a push provider endpoint, one request
// per subscription token.
type HTTPPushSender struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewHTTPPushSender(endpoint, key string) *HTTPPushSender {
	return &HTTPPushSender{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *HTTPPushSender) SendPush(ctx context.Context, tokens []string, title, body string) (int, error) {
	sent := 0
	var lastErr error
	for _, token := range tokens {
		payload := map[string]any{
			"message": map[string]any{
				"token":        token,
				"notification": map[string]string{"title": title, "body": body},
			},
		}
		b, err := json.Marshal(payload)
		if err != nil {
			lastErr = err
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if p.Key != "" {
			req.Header.Set("Authorization", "Bearer "+p.Key)
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("push provider: status %d", resp.StatusCode)
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return 0, lastErr
	}
	return sent, nil
}
