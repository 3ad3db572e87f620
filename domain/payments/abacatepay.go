package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AbacatePayGateway creates PIX billings through the AbacatePay REST API.
type AbacatePayGateway struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewAbacatePayGateway creates a gateway.
func NewAbacatePayGateway(baseURL, apiKey string, httpClient *http.Client) *AbacatePayGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &AbacatePayGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type abacateProduct struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
}

type abacateBillingRequest struct {
	Frequency     string           `json:"frequency"`
	Methods       []string         `json:"methods"`
	Products      []abacateProduct `json:"products"`
	ReturnURL     string           `json:"returnUrl"`
	CompletionURL string           `json:"completionUrl"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

type abacateBillingResponse struct {
	Data *struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Status string `json:"status"`
	} `json:"data"`
	Error any `json:"error"`
}

// CreateCheckout creates a billing and returns its payment page.
func (g *AbacatePayGateway) CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	frequency := "ONE_TIME"
	name := "vaguinhas premium"
	if p.BillingType == BillingMonthly {
		frequency = "MULTIPLE_PAYMENTS"
		name = "vaguinhas premium mensal"
	}
	body, err := json.Marshal(abacateBillingRequest{
		Frequency: frequency,
		Methods:   []string{"PIX"},
		Products: []abacateProduct{{
			ExternalID: p.PaymentID,
			Name:       name,
			Quantity:   1,
			Price:      p.AmountCents,
		}},
		ReturnURL:     p.CancelURL,
		CompletionURL: p.SuccessURL,
		Metadata:      map[string]any{"paymentId": p.PaymentID, "userId": p.UserID},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/billing/create", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("abacatepay billing: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("abacatepay billing: read: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("abacatepay billing: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out abacateBillingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("abacatepay billing: decode: %w", err)
	}
	if out.Error != nil || out.Data == nil || out.Data.ID == "" {
		return nil, fmt.Errorf("abacatepay billing: %v", out.Error)
	}
	return &CheckoutSession{ExternalID: out.Data.ID, URL: out.Data.URL}, nil
}

// AbacatePayEvent is the webhook body sent by AbacatePay.
type AbacatePayEvent struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		Billing struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"billing"`
	} `json:"data"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
