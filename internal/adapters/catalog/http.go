package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/core/money"
)

// HTTP reads products from the remote catalog service.
type HTTP struct {
	log     *zap.Logger
	client  *http.Client
	breaker *circuitBreaker
	address string
}

type httpOption func(*HTTP)

func HTTPLogger(log *zap.Logger) httpOption {
	return func(h *HTTP) {
		if log != nil {
			h.log = log
		}
	}
}

func HTTPTimeout(timeout time.Duration) httpOption {
	return func(h *HTTP) {
		if timeout > 0 {
			h.client.Timeout = timeout
		}
	}
}

func HTTPClient(client *http.Client) httpOption {
	return func(h *HTTP) {
		h.client = client
	}
}

func NewHTTP(address string, options ...httpOption) *HTTP {
	h := &HTTP{
		log:     zap.NewNop(),
		client:  &http.Client{Timeout: 3 * time.Second},
		breaker: newCircuitBreaker(5 * time.Second),
		address: strings.TrimRight(address, "/"),
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

func (h *HTTP) Product(ctx context.Context, productID string) (Product, error) {
	var product Product
	var result error
	err := h.breaker.execute(func() (time.Duration, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.address+"/api/products/"+url.PathEscape(productID), http.NoBody)
		if err != nil {
			return 0, fmt.Errorf("failed build request: %w", err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("request failed from catalog service: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		bBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("failed to read response body: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			product, result = decodeProduct(bBody)
			if result == nil && product.ID == "" {
				product.ID = productID
			}
			return 0, nil
		case http.StatusNotFound:
			result = fmt.Errorf("%w: `%s`", ErrProductNotFound, productID)
			return 0, nil
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			iRetryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			h.log.Debug("catalog asked to back off",
				zap.String("status", resp.Status),
				zap.Int("Retry-After", iRetryAfter),
			)
			return time.Duration(iRetryAfter) * time.Second, nil
		}
		h.log.Info("not correct response",
			zap.String("status", resp.Status),
			zap.String("product", productID),
			zap.String("body", string(bBody)),
		)
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	})
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = errors.Join(ErrUnavailable, err)
		}
		return Product{}, err
	}
	if result != nil {
		return Product{}, result
	}
	return product, nil
}

// Remote catalogs name amount fields inconsistently; all known spellings
// are folded into one money.Pair here.
var (
	usdKeys    = []string{"price_usd", "priceUSD", "priceUsd", "amount_usd", "amountUSD", "amountUSDT", "usdt"}
	localKeys  = []string{"price_local", "priceLocal", "price_inr", "priceINR", "amount_inr", "amountINR", "inr"}
	sellerKeys = []string{"seller_id", "sellerId", "ownerId", "owner_id"}
)

func decodeProduct(data []byte) (Product, error) {
	raw := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Product{}, fmt.Errorf("failed unmarshal catalog response: %w", err)
	}

	p := Product{
		ID:       stringField(raw, "id", "productId", "product_id"),
		Title:    stringField(raw, "title", "name"),
		SellerID: stringField(raw, sellerKeys...),
	}
	if nested, ok := raw["price"].(map[string]any); ok {
		for k, v := range nested {
			raw["price_"+strings.ToLower(k)] = v
		}
	}

	var err error
	if s := stringField(raw, usdKeys...); s != "" {
		if p.Price.USD, err = money.Parse(s, money.USDT); err != nil {
			return Product{}, fmt.Errorf("bad usd price: %w", err)
		}
	}
	if s := stringField(raw, localKeys...); s != "" {
		if p.Price.Local, err = money.Parse(s, money.INR); err != nil {
			return Product{}, fmt.Errorf("bad local price: %w", err)
		}
	}
	return p, nil
}

func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
