package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Client is the JSON-over-HTTP helper shared by the vendor adapters.
type Client struct {
	base string
	hc   *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: base,
		hc: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, v)
}

// DoJSON sends a request with optional headers and body and decodes the
// JSON response into v. A nil v discards the body.
func (c *Client) DoJSON(ctx context.Context, method, path string, headers map[string]string, body []byte, v any) error {
	return c.do(ctx, method, path, headers, body, v)
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body []byte, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("http %d: %s", res.StatusCode, string(b))
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(v)
}

func signHMAC256(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// parseFloat tolerates the string-wrapped numbers most vendors return.
func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// asFloat handles endpoints that mix raw numbers and string numbers in one
// array row (binance klines do this).
func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return parseFloat(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	return int64(asFloat(v))
}
