package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// coinIDs maps exchange tickers to CoinGecko coin IDs for the majors.
// Anything not listed falls back to the lowercased ticker, which matches
// for a fair number of smaller coins.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"AVAX":  "avalanche-2",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"LTC":   "litecoin",
	"UNI":   "uniswap",
	"ATOM":  "cosmos",
}

// CoinGeckoProvider fetches prices from the CoinGecko public API.
type CoinGeckoProvider struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoProvider creates a provider backed by the given HTTP client.
// The client's timeout is left to the caller; the gateway applies its own
// per-fetch deadline via context.
func NewCoinGeckoProvider(baseURL string, client *http.Client) *CoinGeckoProvider {
	return &CoinGeckoProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func coinID(symbol string) string {
	if id, ok := coinIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// GetPrices implements Provider using the /simple/price endpoint.
func (p *CoinGeckoProvider) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	idToSymbol := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		id := coinID(sym)
		idToSymbol[id] = strings.ToUpper(sym)
		ids = append(ids, id)
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		p.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	var body map[string]map[string]json.Number
	if err := p.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(body))
	for id, quote := range body {
		sym, ok := idToSymbol[id]
		if !ok {
			continue
		}
		usd, ok := quote["usd"]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(usd.String())
		if err != nil {
			continue
		}
		prices[sym] = price
	}
	return prices, nil
}

// GetHistoricalPrices implements Provider using /coins/{id}/market_chart.
func (p *CoinGeckoProvider) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	if days <= 0 {
		days = 7
	}

	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d",
		p.baseURL, url.PathEscape(coinID(symbol)), days)

	var body struct {
		Prices [][2]json.Number `json:"prices"`
	}
	if err := p.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	points := make([]PricePoint, 0, len(body.Prices))
	for _, pair := range body.Prices {
		ms, err := pair[0].Int64()
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			continue
		}
		points = append(points, PricePoint{
			Timestamp: time.UnixMilli(ms).UTC(),
			Price:     price,
		})
	}
	return points, nil
}

func (p *CoinGeckoProvider) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("coingecko: rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko: unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
