// Package broker is the execution-API client: session management with a
// persisted access token, margin queries, stop-market order placement and
// historical bar retrieval. All boundary formats live here; the engine
// only sees market.Bar values and plain errors.
package broker

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"tradewin/market"
)

// Client talks to the broker's HTTP API.
type Client struct {
	apiKey      string
	apiSecret   string
	baseURL     string
	tokenFile   string
	accessToken string
	httpClient  *http.Client
	loc         *time.Location
}

type tokenData struct {
	AccessToken string `json:"access_token"`
	SavedAt     string `json:"saved_at"`
}

// NewClient creates a broker client.
func NewClient(apiKey, apiSecret, baseURL, tokenFile string, loc *time.Location) *Client {
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokenFile: tokenFile,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		loc: loc,
	}
}

// Authenticate establishes a usable session: a cached token is reused if
// the profile ping accepts it, otherwise a new session is generated from
// an operator-supplied request token.
func (c *Client) Authenticate() error {
	log.Printf("🔐 Authenticating to broker...")

	if err := c.loadTokenFromFile(); err == nil && c.accessToken != "" {
		if err := c.ping(); err == nil {
			log.Printf("✅ Using cached access token")
			return nil
		}
		log.Printf("⚠️  Cached access token invalid or expired")
	}

	fmt.Printf("🔑 Visit %s/connect/login?api_key=%s and paste the REQUEST_TOKEN here: ", c.baseURL, c.apiKey)
	var requestToken string
	if _, err := fmt.Scanln(&requestToken); err != nil {
		return fmt.Errorf("read request token: %w", err)
	}

	if err := c.generateSession(strings.TrimSpace(requestToken)); err != nil {
		return fmt.Errorf("generate session: %w", err)
	}
	if err := c.saveTokenToFile(); err != nil {
		log.Printf("⚠️  Failed to persist access token: %v", err)
	}
	log.Printf("✅ New access token generated")
	return nil
}

// AccessToken exposes the session token (the tick feed reuses it).
func (c *Client) AccessToken() string { return c.accessToken }

// AvailableMargin returns the cash margin available for new positions.
func (c *Client) AvailableMargin() (float64, error) {
	var resp struct {
		Data struct {
			Equity struct {
				Available struct {
					Cash float64 `json:"cash"`
				} `json:"available"`
			} `json:"equity"`
		} `json:"data"`
	}
	if err := c.getJSON("/user/margins", nil, &resp); err != nil {
		return 0, fmt.Errorf("margin query: %w", err)
	}
	return resp.Data.Equity.Available.Cash, nil
}

// SubmitStopOrder places a stop-market (SL-M) order protecting an open
// position. direction is the position side; the protective order is
// placed opposite to it by the broker.
func (c *Client) SubmitStopOrder(direction string, qty int, triggerPrice float64) error {
	form := url.Values{
		"transaction_type": {direction},
		"quantity":         {fmt.Sprintf("%d", qty)},
		"order_type":       {"SL-M"},
		"product":          {"MIS"},
		"trigger_price":    {fmt.Sprintf("%.1f", triggerPrice)},
	}
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := c.postForm("/orders/regular", form, &resp); err != nil {
		return fmt.Errorf("submit stop order: %w", err)
	}
	log.Printf("📤 Stop order placed: %s (trigger %.1f)", resp.Data.OrderID, triggerPrice)
	return nil
}

// HistoricalBars fetches recent OHLCV bars for the instrument. Bars come
// back raw; ordering and deduplication happen in market.AddIndicators.
func (c *Client) HistoricalBars(symbol, interval string, lookbackDays int) ([]market.Bar, error) {
	to := time.Now().In(c.loc)
	from := to.AddDate(0, 0, -lookbackDays)

	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"from":     {from.Format("2006-01-02 15:04:05")},
		"to":       {to.Format("2006-01-02 15:04:05")},
	}

	var resp struct {
		Data struct {
			Candles []struct {
				Date   string  `json:"date"`
				Open   float64 `json:"open"`
				High   float64 `json:"high"`
				Low    float64 `json:"low"`
				Close  float64 `json:"close"`
				Volume float64 `json:"volume"`
			} `json:"candles"`
		} `json:"data"`
	}
	if err := c.getJSON("/instruments/historical", params, &resp); err != nil {
		return nil, fmt.Errorf("historical bars: %w", err)
	}

	bars := make([]market.Bar, 0, len(resp.Data.Candles))
	for _, cd := range resp.Data.Candles {
		ts, err := time.ParseInLocation("2006-01-02T15:04:05", cd.Date, c.loc)
		if err != nil {
			// Unparseable timestamps are dropped downstream; keep the
			// row out rather than invent a time.
			continue
		}
		bars = append(bars, market.Bar{
			Date:   ts,
			Open:   cd.Open,
			High:   cd.High,
			Low:    cd.Low,
			Close:  cd.Close,
			Volume: cd.Volume,
		})
	}
	return bars, nil
}

// ping verifies the current token against the profile endpoint.
func (c *Client) ping() error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.getJSON("/user/profile", nil, &resp)
}

func (c *Client) generateSession(requestToken string) error {
	form := url.Values{
		"api_key":       {c.apiKey},
		"request_token": {requestToken},
		"api_secret":    {c.apiSecret},
	}
	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := c.postForm("/session/token", form, &resp); err != nil {
		return err
	}
	if resp.Data.AccessToken == "" {
		return fmt.Errorf("empty access token in session response")
	}
	c.accessToken = resp.Data.AccessToken
	return nil
}

func (c *Client) loadTokenFromFile() error {
	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		return err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return err
	}
	c.accessToken = td.AccessToken
	return nil
}

func (c *Client) saveTokenToFile() error {
	td := tokenData{
		AccessToken: c.accessToken,
		SavedAt:     time.Now().In(c.loc).Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenFile, data, 0600)
}

func (c *Client) getJSON(path string, params url.Values, dest interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setAuthHeaders(req)
	return c.do(req, dest)
}

func (c *Client) postForm(path string, form url.Values, dest interface{}) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setAuthHeaders(req)
	return c.do(req, dest)
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("X-Api-Key", c.apiKey)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncate(string(body), 200))
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(body, dest)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
