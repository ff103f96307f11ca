// Package aas is a small client for Asset Administration Shell REST servers.
package aas

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/goalgate/pkg/models"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetries       = 2
	DefaultRetryInterval = 500 * time.Millisecond

	maxErrorBody = 512
)

var ErrNotFound = errors.New("not found")

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Shell is the subset of an administration shell the binding stage uses.
type Shell struct {
	ID             string         `json:"id,omitempty"`
	IDShort        string         `json:"idShort"`
	Identification map[string]any `json:"identification,omitempty"`
}

// Element is one submodel element.
type Element struct {
	IDShort   string          `json:"idShort"`
	ModelType json.RawMessage `json:"modelType"`
	Value     json.RawMessage `json:"value"`
}

// Type returns the model type, accepting both the string and the
// {"name": ...} encodings.
func (e Element) Type() string {
	var s string
	if err := json.Unmarshal(e.ModelType, &s); err == nil {
		return s
	}

	var named struct {
		Name string `json:"name"`
	}

	if err := json.Unmarshal(e.ModelType, &named); err == nil {
		return named.Name
	}

	return ""
}

type Submodel struct {
	ID               string    `json:"id"`
	IDShort          string    `json:"idShort"`
	SubmodelElements []Element `json:"submodelElements"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry sets how many times transient failures are retried and the
// fixed wait between attempts.
func WithRetry(retries uint64, interval time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.retryInterval = interval
	}
}

type Client struct {
	baseURL       string
	http          *http.Client
	limiter       *rate.Limiter
	retries       uint64
	retryInterval time.Duration
	logger        *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: DefaultTimeout},
		limiter:       rate.NewLimiter(rate.Inf, 1),
		retries:       DefaultRetries,
		retryInterval: DefaultRetryInterval,
		logger:        logger.With("module", "aas_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// EncodeID encodes an identifier the way AAS v3 servers expect in paths:
// URL-safe base64 without padding.
func EncodeID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// ListShells returns every shell. Both bare arrays and {"result": [...]} or
// {"shells": [...]} envelopes are accepted.
func (c *Client) ListShells(ctx context.Context) ([]Shell, error) {
	body, err := c.get(ctx, "/shells")
	if err != nil {
		return nil, fmt.Errorf("failed to list shells: %w", err)
	}

	var shells []Shell
	if err := json.Unmarshal(body, &shells); err == nil {
		return shells, nil
	}

	var envelope struct {
		Result []Shell `json:"result"`
		Shells []Shell `json:"shells"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode shell list: %w", err)
	}

	if envelope.Result != nil {
		return envelope.Result, nil
	}

	if envelope.Shells != nil {
		return envelope.Shells, nil
	}

	return []Shell{}, nil
}

func (c *Client) GetSubmodel(ctx context.Context, submodelID string) (*Submodel, error) {
	body, err := c.get(ctx, "/submodels/"+EncodeID(submodelID))
	if err != nil {
		return nil, fmt.Errorf("failed to get submodel %s: %w", submodelID, err)
	}

	var sm Submodel
	if err := json.Unmarshal(body, &sm); err != nil {
		return nil, fmt.Errorf("failed to decode submodel %s: %w", submodelID, err)
	}

	return &sm, nil
}

// GetSubmodelProperty returns the value of the element whose idShort is
// propertyPath. Properties yield their value; SubmodelElementLists yield the
// values of their items.
func (c *Client) GetSubmodelProperty(ctx context.Context, submodelID, propertyPath string) (any, error) {
	sm, err := c.GetSubmodel(ctx, submodelID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s in submodel %s", models.ErrPropertyNotFound, propertyPath, submodelID)
		}

		return nil, err
	}

	for _, el := range sm.SubmodelElements {
		if el.IDShort != propertyPath {
			continue
		}

		switch el.Type() {
		case "Property":
			var v any
			if len(el.Value) > 0 {
				if err := json.Unmarshal(el.Value, &v); err != nil {
					return nil, fmt.Errorf("failed to decode %s: %w", propertyPath, err)
				}
			}

			return v, nil
		case "SubmodelElementList":
			var items []struct {
				Value json.RawMessage `json:"value"`
			}

			if err := json.Unmarshal(el.Value, &items); err != nil {
				return nil, fmt.Errorf("failed to decode list %s: %w", propertyPath, err)
			}

			values := make([]any, 0, len(items))

			for _, item := range items {
				if len(item.Value) == 0 {
					continue
				}

				var v any
				if err := json.Unmarshal(item.Value, &v); err != nil {
					return nil, fmt.Errorf("failed to decode list item of %s: %w", propertyPath, err)
				}

				values = append(values, v)
			}

			return values, nil
		default:
			return nil, fmt.Errorf("%w: element %s has unsupported type %q", models.ErrPropertyNotFound, propertyPath, el.Type())
		}
	}

	return nil, fmt.Errorf("%w: %s in submodel %s", models.ErrPropertyNotFound, propertyPath, submodelID)
}

// HealthCheck succeeds when the server answers the shell listing.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.get(ctx, "/shells")

	return err
}

// get retries network errors and 5xx responses at a fixed interval.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	var body []byte

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.DebugContext(ctx, "Request failed", "url", url, "error", err)

			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= http.StatusBadRequest {
			httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: url, Body: truncate(string(data))}
			if resp.StatusCode >= http.StatusInternalServerError {
				return httpErr
			}

			return backoff.Permanent(httpErr)
		}

		body = data

		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), c.retries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return body, nil
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}

	return s
}
