package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxSessionPages bounds pagination so a provider that keeps answering
// has_more=true cannot spin the reconciliation loop forever.
const maxSessionPages = 20

// Client is a minimal Stripe REST client covering what the fulfillment
// subsystem needs: listing completed checkout sessions and verifying
// webhook signatures.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string

	timeNow func() time.Time
}

type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       baseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		timeNow:       time.Now,
	}
}

type sessionListPage struct {
	Data []struct {
		ID            string `json:"id"`
		PaymentStatus string `json:"payment_status"`
	} `json:"data"`
	HasMore bool `json:"has_more"`
}

// ListPaidCheckoutSessions returns the ids of all checkout sessions
// created inside [start, end] whose payment_status is "paid". Pagination
// is capped at maxSessionPages.
func (c *Client) ListPaidCheckoutSessions(ctx context.Context, start, end time.Time) ([]string, error) {
	var (
		ids           []string
		startingAfter string
	)

	for page := 0; page < maxSessionPages; page++ {
		q := url.Values{}
		q.Set("limit", "100")
		q.Set("created[gte]", strconv.FormatInt(start.Unix(), 10))
		q.Set("created[lte]", strconv.FormatInt(end.Unix(), 10))
		if startingAfter != "" {
			q.Set("starting_after", startingAfter)
		}

		resp, err := c.listSessionsPage(ctx, q)
		if err != nil {
			return nil, err
		}

		for _, s := range resp.Data {
			if s.PaymentStatus == "paid" {
				ids = append(ids, s.ID)
			}
		}

		if !resp.HasMore || len(resp.Data) == 0 {
			break
		}
		startingAfter = resp.Data[len(resp.Data)-1].ID
	}

	return ids, nil
}

func (c *Client) listSessionsPage(ctx context.Context, q url.Values) (*sessionListPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/checkout/sessions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stripe error %d: %s", resp.StatusCode, string(b))
	}

	var page sessionListPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode stripe response: %w", err)
	}
	return &page, nil
}
