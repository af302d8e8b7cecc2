package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/models"
	"github.com/username/fundfolio/src/utils"
	"golang.org/x/net/publicsuffix"
)

const (
	estimateReferer = "http://fund.eastmoney.com/"
	browserUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

	// The prior-session confirmed rate only changes once a day; re-scraping
	// the full net-worth history on every estimate poll would hammer the
	// source for nothing.
	actualRateCacheTTL = 10 * time.Minute
)

var (
	jsonpRe    = regexp.MustCompile(`jsonpgz\((.*)\);`)
	navTrendRe = regexp.MustCompile(`(?s)Data_netWorthTrend\s*=\s*(\[.*?\]);`)
)

// estimatePayload is the jsonp body of the fundgz estimate endpoint.
// Numeric fields arrive as strings.
type estimatePayload struct {
	Code         string `json:"fundcode"`
	Name         string `json:"name"`
	OfficialNAV  string `json:"dwjz"`   // last published NAV
	OfficialDate string `json:"jzrq"`   // date of that NAV
	EstimateNAV  string `json:"gsz"`    // intraday estimate
	EstimateRate string `json:"gszzl"`  // intraday change, percent
	EstimateTime string `json:"gztime"` // "2006-01-02 15:04"
}

// navTrendPoint is one entry of the published net-worth history.
type navTrendPoint struct {
	X int64   `json:"x"` // unix milliseconds
	Y float64 `json:"y"` // official NAV
}

type cachedActualRate struct {
	rate float64
	date string
}

// eastmoneyQuoteSource fetches intraday estimates and the prior session's
// confirmed rate from the Eastmoney fund endpoints.
type eastmoneyQuoteSource struct {
	httpClient      *http.Client
	estimateBaseURL string
	historyBaseURL  string
	loc             *time.Location
	now             func() time.Time
	actualRates     *cache.Cache
}

// NewEastmoneyQuoteSource creates the production quote source. Base URLs are
// configurable so tests can point at stub servers.
func NewEastmoneyQuoteSource(estimateBaseURL, historyBaseURL string, timeout time.Duration, loc *time.Location, now func() time.Time) QuoteSource {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil && logger.L != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}
	if now == nil {
		now = time.Now
	}
	return &eastmoneyQuoteSource{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		estimateBaseURL: strings.TrimRight(estimateBaseURL, "/"),
		historyBaseURL:  strings.TrimRight(historyBaseURL, "/"),
		loc:             loc,
		now:             now,
		actualRates:     cache.New(actualRateCacheTTL, 2*actualRateCacheTTL),
	}
}

// Fetch retrieves the live estimate for one fund code and enriches it with
// the prior session's confirmed rate when that can be determined.
func (s *eastmoneyQuoteSource) Fetch(code string) (models.Quote, error) {
	payload, err := s.fetchEstimate(code)
	if err != nil {
		return models.Quote{}, err
	}

	estNAV, err := strconv.ParseFloat(payload.EstimateNAV, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("invalid estimate NAV %q for fund %s: %w", payload.EstimateNAV, code, err)
	}
	estRatePct, err := strconv.ParseFloat(payload.EstimateRate, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("invalid estimate rate %q for fund %s: %w", payload.EstimateRate, code, err)
	}

	quote := models.Quote{
		OK:            true,
		EstimatedNAV:  estNAV,
		EstimatedRate: estRatePct / 100.0,
		SourceTime:    sourceTimeOfDay(payload.EstimateTime),
	}

	if payload.OfficialNAV != "" {
		if nav, err := strconv.ParseFloat(payload.OfficialNAV, 64); err == nil {
			quote.OfficialNAV = nav
			quote.OfficialNAVDate = payload.OfficialDate
		}
	}

	// Once the source republishes the 15:00 close and the evening batch has
	// run, the "estimate" is in fact the confirmed value for the day.
	if strings.Contains(payload.EstimateTime, "15:00") && s.now().In(s.loc).Hour() >= 20 {
		quote.IsOfficial = true
	}

	if rate, date, ok := s.priorActualRate(code); ok {
		quote.PriorActualRate = rate
		quote.PriorActualDate = date
	}
	return quote, nil
}

// FundName resolves a fund's display name from the estimate endpoint.
func (s *eastmoneyQuoteSource) FundName(code string) (string, error) {
	payload, err := s.fetchEstimate(code)
	if err != nil {
		return "", err
	}
	if payload.Name == "" {
		return "", fmt.Errorf("no name published for fund %s", code)
	}
	return payload.Name, nil
}

func (s *eastmoneyQuoteSource) fetchEstimate(code string) (*estimatePayload, error) {
	url := fmt.Sprintf("%s/js/%s.js", s.estimateBaseURL, code)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Referer", estimateReferer)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("estimate request for fund %s failed: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("estimate endpoint returned status %d for fund %s", resp.StatusCode, code)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading estimate response for fund %s: %w", code, err)
	}

	matches := jsonpRe.FindSubmatch(body)
	if len(matches) < 2 {
		return nil, fmt.Errorf("no estimate published for fund code %s", code)
	}

	var payload estimatePayload
	if err := json.Unmarshal(matches[1], &payload); err != nil {
		return nil, fmt.Errorf("decoding estimate payload for fund %s: %w", code, err)
	}
	return &payload, nil
}

// priorActualRate scrapes the published net-worth trend and derives the most
// recent confirmed session-over-session change. Failures are swallowed: the
// prior rate is an enrichment, not a requirement.
func (s *eastmoneyQuoteSource) priorActualRate(code string) (float64, string, bool) {
	if v, ok := s.actualRates.Get(code); ok {
		cached := v.(cachedActualRate)
		return cached.rate, cached.date, true
	}

	url := fmt.Sprintf("%s/pingzhongdata/%s.js", s.historyBaseURL, code)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, "", false
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if logger.L != nil {
			logger.L.Warn("Net-worth history fetch failed", "code", code, "error", err)
		}
		return 0, "", false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", false
	}

	matches := navTrendRe.FindSubmatch(body)
	if len(matches) < 2 {
		return 0, "", false
	}

	var points []navTrendPoint
	if err := json.Unmarshal(matches[1], &points); err != nil {
		if logger.L != nil {
			logger.L.Warn("Malformed net-worth trend payload", "code", code, "error", err)
		}
		return 0, "", false
	}
	if len(points) < 2 {
		return 0, "", false
	}

	last := points[len(points)-1]
	prev := points[len(points)-2]
	if prev.Y <= 0 {
		return 0, "", false
	}
	rate := (last.Y - prev.Y) / prev.Y
	date := time.UnixMilli(last.X).In(s.loc).Format(utils.DateFormat)

	s.actualRates.Set(code, cachedActualRate{rate: rate, date: date}, cache.DefaultExpiration)
	return rate, date, true
}

// sourceTimeOfDay keeps only the clock part of the provider's timestamp
// ("2006-01-02 15:04" -> "15:04") for display.
func sourceTimeOfDay(full string) string {
	if i := strings.IndexByte(full, ' '); i >= 0 {
		return full[i+1:]
	}
	return full
}
