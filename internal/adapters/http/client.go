package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
	"github.com/ohmynofan/mapp-task-bot/pkg/utils"
)

type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if detail := e.Detail(); detail != "" {
		return fmt.Sprintf("HTTP Error %d: %s", e.StatusCode, detail)
	}
	return fmt.Sprintf("HTTP Error %d: %s", e.StatusCode, e.Status)
}

// Detail returns the server's human readable message from a {"detail": ...}
// or {"error": ...} body, or "" when the body carries none.
func (e *HTTPError) Detail() string {
	if len(e.Body) == 0 {
		return ""
	}
	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil && strings.TrimSpace(detail) != "" {
		return strings.TrimSpace(detail)
	}
	// validation errors arrive as [{"msg": ...}]
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil && len(items) > 0 && strings.TrimSpace(items[0].Msg) != "" {
		return strings.TrimSpace(items[0].Msg)
	}
	return strings.TrimSpace(body.Error)
}

type FetchOptions struct {
	Method            string
	Query             interface{}
	Body              interface{}
	AdditionalHeaders map[string]string
}

type APIClient struct {
	BaseURL    string
	Proxy      string
	UserAgent  string
	HTTPClient *http.Client
	Log        *logger.ClassLogger
}

func NewAPIClient(baseURL, proxy string, timeout time.Duration) (*APIClient, error) {
	transport := &http.Transport{}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return NewAPIClientWithHTTP(baseURL, &http.Client{Transport: transport, Timeout: timeout}), nil
}

func NewAPIClientWithHTTP(baseURL string, client *http.Client) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	apiClient := &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		UserAgent:  "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Mobile Safari/537.36",
		HTTPClient: client,
	}
	apiClient.Log = logger.NewLogger(apiClient)
	return apiClient
}

func (c *APIClient) _generateHeaders() map[string]string {
	return map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
		"Content-Type":    "application/json",
		"User-Agent":      c.UserAgent,
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
	}
}

func (c *APIClient) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
}

func (c *APIClient) Fetch(ctx context.Context, endpoint string, opts *FetchOptions) (interface{}, error) {
	if opts == nil {
		opts = &FetchOptions{}
	}

	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	target := c.resolve(endpoint)
	if opts.Query != nil {
		encoded, err := utils.EncodeURLParams(opts.Query)
		if err != nil {
			return nil, err
		}
		if encoded != "" {
			target += "?" + encoded
		}
	}

	var reqBody io.Reader
	var bodyCopy []byte
	hasBody := opts.Method != http.MethodGet && opts.Body != nil
	if hasBody {
		jsonBody, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyCopy = jsonBody
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c._generateHeaders() {
		req.Header.Set(key, value)
	}
	for key, value := range opts.AdditionalHeaders {
		req.Header.Set(key, value)
	}
	if !hasBody {
		req.Header.Del("Content-Type")
	}

	if hasBody {
		c.Log.JustLog(fmt.Sprintf("%s %s\nBody:\n%s", opts.Method, target, utils.BeautifyJSON(bodyCopy)))
	} else {
		c.Log.JustLog(fmt.Sprintf("%s %s", opts.Method, target))
	}

	res, resBodyBytes, err := c.do(req)
	if err != nil {
		return nil, err
	}

	c.Log.JustLog(fmt.Sprintf("Response %d Body:\n%s", res.StatusCode, utils.BeautifyJSON(resBodyBytes)))

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		var data interface{}
		if strings.Contains(res.Header.Get("Content-Type"), "application/json") {
			if err := json.Unmarshal(resBodyBytes, &data); err == nil {
				return data, nil
			}
		}
		return string(resBodyBytes), nil
	}

	return nil, &HTTPError{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Body:       resBodyBytes,
	}
}

// FetchScript downloads a provider script body.
func (c *APIClient) FetchScript(ctx context.Context, scriptURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(scriptURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "*/*")

	c.Log.JustLog(fmt.Sprintf("GET %s (script)", scriptURL))
	res, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: res.StatusCode, Status: res.Status, Body: body}
	}
	return body, nil
}

func (c *APIClient) do(req *http.Request) (*http.Response, []byte, error) {
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request error: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return res, body, nil
}

func decodeInto(in interface{}, out interface{}) error {
	bytes, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}
