// Package checkout creates Mercado Pago payment preferences for the shop.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

const currencyBRL = "BRL"

var (
	ErrDisabled    = errors.New("checkout: payments are not configured")
	ErrInvalidItem = errors.New("checkout: invalid cart item")
	ErrUpstream    = errors.New("checkout: payment provider error")
)

// BackURLs are where the provider sends the buyer after payment.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// CartItem is one line of the shop cart as sent by the client.
type CartItem struct {
	Name     string `json:"name"`
	Price    string `json:"price"` // "R$ 49,90"
	Quantity int    `json:"quantity"`
}

// Client creates preferences through the Mercado Pago SDK.
type Client struct {
	prefs    preference.Client // nil when disabled
	backURLs BackURLs
}

// NewClient creates a Client. An empty token yields a client whose calls
// return ErrDisabled. baseURL replaces the SDK's API host when it differs
// from it (sandboxes, proxies, tests).
func NewClient(baseURL, token string, back BackURLs, timeout time.Duration) (*Client, error) {
	c := &Client{backURLs: back}
	if token == "" {
		return c, nil
	}

	req, err := newRequester(baseURL, timeout)
	if err != nil {
		return nil, err
	}
	cfg, err := config.New(token, config.WithHTTPClient(req))
	if err != nil {
		return nil, fmt.Errorf("checkout: sdk config: %w", err)
	}
	c.prefs = preference.NewClient(cfg)
	return c, nil
}

// Enabled reports whether an access token is configured.
func (c *Client) Enabled() bool {
	return c.prefs != nil
}

// hostRequester sends the SDK's requests to base instead of the default
// API host.
type hostRequester struct {
	base   *url.URL // nil keeps the SDK's URL
	client *http.Client
}

func newRequester(baseURL string, timeout time.Duration) (*hostRequester, error) {
	r := &hostRequester{client: &http.Client{Timeout: timeout}}
	if baseURL == "" {
		return r, nil
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("checkout: invalid base url %q", baseURL)
	}
	r.base = u
	return r, nil
}

func (r *hostRequester) Do(req *http.Request) (*http.Response, error) {
	if r.base != nil && req.URL.Host != r.base.Host {
		req.URL.Scheme = r.base.Scheme
		req.URL.Host = r.base.Host
		req.URL.Path = r.base.Path + req.URL.Path
		req.Host = ""
	}
	return r.client.Do(req)
}

func buildItems(cart []CartItem) ([]preference.ItemRequest, error) {
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidItem)
	}
	items := make([]preference.ItemRequest, 0, len(cart))
	for i, it := range cart {
		if strings.TrimSpace(it.Name) == "" {
			return nil, fmt.Errorf("%w: item %d has no name", ErrInvalidItem, i+1)
		}
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidItem, i+1)
		}
		price, err := ParsePrice(it.Price)
		if err != nil {
			return nil, err
		}
		items = append(items, preference.ItemRequest{
			Title:      strings.TrimSpace(it.Name),
			UnitPrice:  price.InexactFloat64(), // two decimal places, exact in the wire format
			Quantity:   it.Quantity,
			CurrencyID: currencyBRL,
		})
	}
	return items, nil
}

// CreatePreference registers the cart with the provider and returns the
// preference id the frontend uses to open the checkout.
func (c *Client) CreatePreference(ctx context.Context, cart []CartItem) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	items, err := buildItems(cart)
	if err != nil {
		return "", err
	}

	req := preference.Request{
		Items: items,
		BackURLs: &preference.BackURLsRequest{
			Success: c.backURLs.Success,
			Failure: c.backURLs.Failure,
			Pending: c.backURLs.Pending,
		},
	}
	if c.backURLs.Success != "" {
		req.AutoReturn = "approved"
	}

	resp, err := c.prefs.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if resp == nil || resp.ID == "" {
		return "", fmt.Errorf("%w: response has no preference id", ErrUpstream)
	}

	slog.Info("checkout preference created", "preference_id", resp.ID, "items", len(items))
	return resp.ID, nil
}
