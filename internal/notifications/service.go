package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/interbox/payments-backend/pkg/config"
	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	"github.com/interbox/payments-backend/pkg/logger"
)

const (
	sendgridSendURL = "https://api.sendgrid.com/v3/mail/send"
	sendTimeout     = 10 * time.Second
)

// Service sends confirmation emails through the Sendgrid v3 API. Everything
// here is best effort: an unsent email never blocks a payment flow, and an
// unconfigured API key turns the service into a logging no-op.
type Service struct {
	httpClient *http.Client
	sendURL    string
	apiKey     string
	from       string
	logg       *logger.Logger
}

// NewService wires the notification sender.
func NewService(cfg config.SendgridConfig, logg *logger.Logger) (*Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("notifications logger required")
	}
	return &Service{
		httpClient: &http.Client{Timeout: sendTimeout},
		sendURL:    sendgridSendURL,
		apiKey:     cfg.APIKey,
		from:       cfg.DefaultFrom,
		logg:       logg,
	}, nil
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailPersonalization struct {
	To []mailAddress `json:"to"`
}

type mailSendRequest struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []mailContent         `json:"content"`
}

// PaymentConfirmed emails the payer that the order settled.
func (s *Service) PaymentConfirmed(ctx context.Context, order *models.Order) error {
	if order == nil || order.CustomerEmail == "" {
		return nil
	}
	ctx = s.logg.WithCorrelationID(ctx, order.CorrelationID)
	if s.apiKey == "" {
		s.logg.Info(ctx, "sendgrid not configured, skipping confirmation email")
		return nil
	}

	subject, body := confirmationContent(order)
	return s.send(ctx, order.CustomerEmail, subject, body)
}

func confirmationContent(order *models.Order) (string, string) {
	amount := fmt.Sprintf("R$ %d,%02d", order.AmountCents/100, order.AmountCents%100)
	if order.Kind == enums.IntentKindProductPurchase {
		return "Pagamento confirmado",
			fmt.Sprintf("Seu pagamento de %s pelo pedido %s foi confirmado.", amount, order.ProductRef)
	}
	return "Inscrição confirmada",
		fmt.Sprintf("Seu pagamento de %s foi confirmado. Sua inscrição está garantida.", amount)
}

func (s *Service) send(ctx context.Context, to, subject, body string) error {
	payload := mailSendRequest{
		Personalizations: []mailPersonalization{{To: []mailAddress{{Email: to}}}},
		From:             mailAddress{Email: s.from, Name: "Interbox"},
		Subject:          subject,
		Content:          []mailContent{{Type: "text/plain", Value: body}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail send returned %d: %s", resp.StatusCode, string(detail))
	}

	s.logg.Info(ctx, "confirmation email queued")
	return nil
}
