package price

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"leapScope/internal/httpretry"
)

const (
	// DefaultBase is the public CoinGecko API root.
	DefaultBase = "https://api.coingecko.com/api/v3"

	// DefaultCoinID quotes the wagered asset. The games settle in the
	// chain's native token, so ETH is the right default on both chains.
	DefaultCoinID = "ethereum"

	cacheTTL = 60 * time.Second
)

// Client fetches the wagered asset's USD quote with a short in-process
// cache. Lookups are best effort; responses degrade to missing USD fields
// when the quote is unavailable.
type Client struct {
	base   string
	coin   string
	http   *httpretry.Client
	logger *zap.Logger

	mu        sync.Mutex
	cached    decimal.Decimal
	fetchedAt time.Time
	now       func() time.Time
}

func NewClient(base, coin string, httpClient *httpretry.Client, logger *zap.Logger) *Client {
	if base == "" {
		base = DefaultBase
	}
	if coin == "" {
		coin = DefaultCoinID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   base,
		coin:   coin,
		http:   httpClient,
		logger: logger,
		now:    time.Now,
	}
}

// USD returns the current USD quote, refreshing the cached value when it
// is older than a minute.
func (c *Client) USD(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < cacheTTL {
		return c.cached, nil
	}

	params := url.Values{}
	params.Set("ids", c.coin)
	params.Set("vs_currencies", "usd")

	var out map[string]map[string]decimal.Decimal
	if err := c.http.GetJSON(ctx, c.base+"/simple/price", params, &out); err != nil {
		return decimal.Zero, err
	}

	quote, ok := out[c.coin]["usd"]
	if !ok || quote.IsZero() {
		return decimal.Zero, fmt.Errorf("quote for %s missing in response", c.coin)
	}

	c.cached = quote
	c.fetchedAt = c.now()
	return quote, nil
}

// Annotate converts a display amount into a two-place USD string. Empty
// when the quote is unavailable or the amount does not parse.
func Annotate(amount string, usd decimal.Decimal) string {
	if usd.IsZero() {
		return ""
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return ""
	}
	return value.Mul(usd).StringFixed(2)
}
