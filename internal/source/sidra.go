package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/painel-gv/indicadores/internal/resilience"
)

// SIDRASource is the provenance tag for records served by the IBGE SIDRA API.
const SIDRASource = "IBGE_SIDRA"

// SIDRAOptions configures the SIDRA adapter.
type SIDRAOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// RatePerSec throttles calls to the public API. Default 5 req/s.
	RatePerSec float64
}

// SIDRAAdapter fetches municipal aggregates from the IBGE SIDRA API.
// URL shape: {base}/values/t/{table}/v/{variable}/p/{periods}/n6/{code}.
type SIDRAAdapter struct {
	client  *http.Client
	opts    SIDRAOptions
	limiter *rate.Limiter
}

// NewSIDRAAdapter creates a SIDRA adapter with the given options.
func NewSIDRAAdapter(opts SIDRAOptions) *SIDRAAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://apisidra.ibge.gov.br"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "painel-gv/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	return &SIDRAAdapter{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

func (a *SIDRAAdapter) Name() string { return SIDRASource }

// Fetch queries the aggregate declared in the chain entry for the
// municipality. An empty result set or 404 is an unavailable outcome; 5xx and
// timeouts are transient; an unparseable body is permanent.
func (a *SIDRAAdapter) Fetch(ctx context.Context, req Request) (*Payload, error) {
	if req.Entry.Table == "" || req.Entry.Variable == "" {
		return nil, resilience.NewPermanentError(
			eris.Errorf("sidra: %s: chain entry missing table/variable", req.IndicatorKey),
			"bad chain entry",
		)
	}

	periods := req.Entry.Periods
	if periods == "" {
		periods = "all"
	}

	url := fmt.Sprintf("%s/values/t/%s/v/%s/p/%s/n6/%s?format=json",
		strings.TrimSuffix(a.opts.BaseURL, "/"),
		req.Entry.Table, req.Entry.Variable, periods, req.MunicipalityCode,
	)

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sidra: rate limiter wait")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sidra: create request")
	}
	httpReq.Header.Set("User-Agent", a.opts.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures are retryable on this adapter.
		return nil, resilience.NewTransientError(eris.Wrapf(err, "sidra: get %s", url), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.ErrUnavailable
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("sidra: http %d from %s", resp.StatusCode, url), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, resilience.NewPermanentError(
			eris.Errorf("sidra: http %d from %s", resp.StatusCode, url), "unexpected status")
	}

	var rows []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "sidra: decode body"), "malformed response")
	}

	// The first element maps dimension codes to their labels; data follows.
	if len(rows) < 2 {
		return nil, resilience.ErrUnavailable
	}

	header := rows[0]
	yearKey, monthKey := periodKeys(header)
	if yearKey == "" {
		return nil, resilience.NewPermanentError(
			eris.Errorf("sidra: no period dimension in table %s", req.Entry.Table), "schema mismatch")
	}

	out := make([]Row, 0, len(rows)-1)
	for _, r := range rows[1:] {
		row := Row{
			Year:  r[yearKey],
			Value: r["V"],
			Unit:  r["MN"],
		}
		if monthKey != "" {
			row.Month = r[monthKey]
		}
		out = append(out, row)
	}

	zap.L().Debug("sidra: fetched",
		zap.String("indicator", req.IndicatorKey),
		zap.String("table", req.Entry.Table),
		zap.Int("rows", len(out)),
	)

	return &Payload{Source: SIDRASource, Rows: out}, nil
}

// periodKeys locates the dimension keys labeled as year and month in the
// SIDRA header row. Labels are Portuguese ("Ano", "Mês"); monthly tables
// label the period "Mês (Código)" style columns.
func periodKeys(header map[string]string) (yearKey, monthKey string) {
	for key, label := range header {
		l := strings.ToLower(label)
		switch {
		case l == "ano" || strings.HasPrefix(l, "ano "):
			yearKey = key
		case strings.HasPrefix(l, "mês") || strings.HasPrefix(l, "mes"):
			monthKey = key
		}
	}
	// Monthly tables encode year inside the month dimension; the normalizer
	// splits yyyymm codes, so falling back to the month key alone still works.
	if yearKey == "" && monthKey != "" {
		yearKey = monthKey
		monthKey = ""
	}
	return yearKey, monthKey
}
