package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/civicpulse/backend/internal/models"
)

// SendGridBanNotifier emails a banned submitter through the SendGrid v3 API.
type SendGridBanNotifier struct {
	APIKey     string
	FromEmail  string
	HTTPClient *http.Client
	Endpoint   string
}

func NewSendGridBanNotifier(apiKey, fromEmail string) *SendGridBanNotifier {
	return &SendGridBanNotifier{
		APIKey:     strings.TrimSpace(apiKey),
		FromEmail:  strings.TrimSpace(fromEmail),
		Endpoint:   "https://api.sendgrid.com/v3/mail/send",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendGridEmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To         []sendGridEmailAddress `json:"to"`
	Subject    string                 `json:"subject"`
	CustomArgs map[string]string      `json:"custom_args,omitempty"`
}

type sendGridMailSendRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridEmailAddress      `json:"from"`
	Content          []sendGridContent         `json:"content"`
}

func banNoticeBody(ban models.BannedEmail) string {
	name := strings.TrimSpace(ban.UserName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hi %s,\n\nYour CivicPulse account has been closed and %s can no longer be used to register or sign in.\n\nReason: %s\nDate: %s\n\nIssues you reported remain on record.\n",
		name, ban.Email, ban.Reason, ban.BannedAt.UTC().Format("2006-01-02 15:04 MST"),
	)
}

func (m *SendGridBanNotifier) NotifyBanned(ctx context.Context, ban models.BannedEmail) error {
	if m.APIKey == "" {
		return fmt.Errorf("missing SENDGRID_API_KEY")
	}
	if m.FromEmail == "" {
		return fmt.Errorf("missing NOTICE_FROM_EMAIL")
	}

	reqBody := sendGridMailSendRequest{
		Personalizations: []sendGridPersonalization{
			{
				To:         []sendGridEmailAddress{{Email: ban.Email, Name: ban.UserName}},
				Subject:    "Your CivicPulse account has been closed",
				CustomArgs: map[string]string{"ban_id": ban.ID},
			},
		},
		From:    sendGridEmailAddress{Email: m.FromEmail, Name: "CivicPulse"},
		Content: []sendGridContent{{Type: "text/plain", Value: banNoticeBody(ban)}},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid mail send http %d", resp.StatusCode)
	}
	return nil
}
