package rate

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"dealfx/internal/money"
)

// Source yields the current exchange rate from one upstream endpoint.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// JSONSourceOptions parameterise a JSON rate endpoint.
type JSONSourceOptions struct {
	Name      string
	URL       string
	RatePath  string // gjson path of the numeric rate field
	Invert    bool   // endpoint reports target->source; usable rate is 1/value
	UserAgent string
	Insecure  bool // disable TLS verification; non-production use only
}

// JSONSource fetches a rate from an HTTP endpoint returning JSON with a
// single positive numeric rate field at a documented path.
type JSONSource struct {
	opts   JSONSourceOptions
	client *http.Client
}

// NewJSONSource constructs a source. The client carries no global timeout;
// each attempt is bounded by the context the provider derives from its budget.
func NewJSONSource(opts JSONSourceOptions) *JSONSource {
	client := &http.Client{}
	if opts.Insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &JSONSource{opts: opts, client: client}
}

// Name identifies the source in logs and aggregated errors.
func (s *JSONSource) Name() string {
	return s.opts.Name
}

// Fetch performs one GET attempt. Any transport failure, non-2xx status,
// malformed JSON, missing field, or non-positive value is a failed attempt.
func (s *JSONSource) Fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Decimal{}, fmt.Errorf("http %d from %s", resp.StatusCode, s.opts.URL)
	}

	if !gjson.ValidBytes(payload) {
		return decimal.Decimal{}, fmt.Errorf("invalid json from %s", s.opts.URL)
	}

	field := gjson.GetBytes(payload, s.opts.RatePath)
	if !field.Exists() {
		return decimal.Decimal{}, fmt.Errorf("rate field %q missing in response from %s", s.opts.RatePath, s.opts.URL)
	}

	value, err := decimal.NewFromString(strings.TrimSpace(field.String()))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rate field %q is not numeric: %w", s.opts.RatePath, err)
	}
	if value.Sign() <= 0 {
		return decimal.Decimal{}, errors.New("rate must be greater than zero")
	}

	if s.opts.Invert {
		value = decimal.New(1, 0).DivRound(value, money.RateScale)
		if value.Sign() <= 0 {
			return decimal.Decimal{}, errors.New("inverted rate rounded to zero")
		}
	}

	return value.Round(money.RateScale), nil
}

var _ Source = (*JSONSource)(nil)
