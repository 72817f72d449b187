package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

// UpstashOption customizes Upstash.
type UpstashOption func(*Upstash)

func WithKeyPrefix(prefix string) UpstashOption {
	return func(s *Upstash) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(s *Upstash) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// Upstash caches bundles in Upstash Redis through its REST API.
type Upstash struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
}

var _ contractx.BundleCache = (*Upstash)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

func NewUpstash(cfg UpstashConfig, opts ...UpstashOption) (*Upstash, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	store := &Upstash{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultKeyPrefix,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store, nil
}

func (s *Upstash) Get(ctx context.Context, businessRef string) (*contractx.ContextBundle, error) {
	key, err := cacheKey(s.keyPrefix, businessRef)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, nil
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode bundle payload: %w", err)
	}
	return decodeBundle([]byte(encoded))
}

func (s *Upstash) Put(ctx context.Context, businessRef string, bundle *contractx.ContextBundle, ttl time.Duration) error {
	key, err := cacheKey(s.keyPrefix, businessRef)
	if err != nil {
		return err
	}

	payload, err := encodeBundle(bundle)
	if err != nil {
		return err
	}

	cmd := []any{"SET", key, string(payload)}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}

	_, err = s.exec(ctx, cmd)
	return err
}

func (s *Upstash) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}
