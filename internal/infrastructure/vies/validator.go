// Package vies validates VAT numbers. Every number is checked against its
// country's layout and check digit; EU numbers can additionally be looked
// up in the European Commission's VIES registry.
package vies

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// ErrRegistryUnavailable is returned when VIES cannot give an answer for
// the member state right now
var ErrRegistryUnavailable = invoicing.ErrVATRegistryUnavailable

// ResultCache stores registry verdicts
type ResultCache interface {
	Get(ctx context.Context, vat string) (*invoicing.VATValidation, error)
	Set(ctx context.Context, vat string, result *invoicing.VATValidation, ttl time.Duration) error
}

const (
	defaultCacheTTL = 24 * time.Hour
	// VIES prints this when a member state withholds trader details
	undisclosed = "---"
)

// Validator implements invoicing.VATValidator
type Validator struct {
	remote     bool
	endpoint   string
	httpClient *http.Client
	cache      ResultCache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithCache keeps registry verdicts for ttl. A zero ttl means one day.
func WithCache(cache ResultCache, ttl time.Duration) Option {
	return func(v *Validator) {
		v.cache = cache
		if ttl > 0 {
			v.cacheTTL = ttl
		}
	}
}

// WithHTTPClient replaces the registry client
func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) {
		v.httpClient = client
	}
}

// NewValidator creates a validator. The registry is consulted only when
// cfg.Enabled is set.
func NewValidator(cfg config.VIESConfig, logger *zap.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	v := &Validator{
		remote:     cfg.Enabled,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: client,
		cacheTTL:   defaultCacheTTL,
		logger:     logger.Named("vies"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks vat locally and, for EU numbers with the registry
// enabled, against VIES. A malformed number is a negative verdict, not an
// error; errors mean no verdict could be reached.
func (v *Validator) Validate(ctx context.Context, vat string) (invoicing.VATValidation, error) {
	normalized := Normalize(vat)
	country, number, ok := Split(normalized)
	if !ok {
		return invoicing.VATValidation{Number: normalized, Reason: "missing country prefix"}, nil
	}
	result := invoicing.VATValidation{CountryCode: country, Number: number}
	if reason := checkFormat(country, number); reason != "" {
		result.Reason = reason
		return result, nil
	}
	if !v.remote || !registry[country] {
		result.Valid = true
		return result, nil
	}

	if v.cache != nil {
		cached, err := v.cache.Get(ctx, normalized)
		if err != nil {
			v.logger.Warn("VAT cache lookup failed", zap.String("vat", normalized), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	remote, err := v.lookup(ctx, country, number)
	if err != nil {
		return invoicing.VATValidation{}, err
	}
	if v.cache != nil {
		if err := v.cache.Set(ctx, normalized, &remote, v.cacheTTL); err != nil {
			v.logger.Warn("VAT cache store failed", zap.String("vat", normalized), zap.Error(err))
		}
	}
	return remote, nil
}

// checkResponse is the body of GET /ms/{country}/vat/{number}
type checkResponse struct {
	IsValid     bool   `json:"isValid"`
	RequestDate string `json:"requestDate"`
	UserError   string `json:"userError"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	VATNumber   string `json:"vatNumber"`
}

func (v *Validator) lookup(ctx context.Context, country, number string) (invoicing.VATValidation, error) {
	endpoint := fmt.Sprintf("%s/ms/%s/vat/%s", v.endpoint, url.PathEscape(country), url.PathEscape(number))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return invoicing.VATValidation{}, fmt.Errorf("vies: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return invoicing.VATValidation{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return invoicing.VATValidation{}, fmt.Errorf("vies: failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return invoicing.VATValidation{}, fmt.Errorf("%w: status %d", ErrRegistryUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return invoicing.VATValidation{}, fmt.Errorf("vies: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out checkResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return invoicing.VATValidation{}, fmt.Errorf("vies: failed to decode response: %w", err)
	}
	v.logger.Debug("VIES lookup",
		zap.String("country", country),
		zap.Bool("valid", out.IsValid),
		zap.String("user_error", out.UserError),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch out.UserError {
	case "", "VALID", "INVALID":
	case "INVALID_INPUT":
		return invoicing.VATValidation{CountryCode: country, Number: number, Reason: "rejected by VIES"}, nil
	default:
		return invoicing.VATValidation{}, fmt.Errorf("%w: %s", ErrRegistryUnavailable, out.UserError)
	}

	result := invoicing.VATValidation{
		Valid:       out.IsValid,
		CountryCode: country,
		Number:      number,
		Name:        disclosed(out.Name),
		Address:     disclosed(strings.ReplaceAll(out.Address, "\n", ", ")),
	}
	if !out.IsValid {
		result.Reason = "not registered for intra-EU trade"
	}
	return result, nil
}

func disclosed(s string) string {
	s = strings.TrimSpace(s)
	if s == undisclosed {
		return ""
	}
	return s
}

var _ invoicing.VATValidator = (*Validator)(nil)
