package services

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const estimateBody = `jsonpgz({"fundcode":"110011","name":"Yifangda Select","jzrq":"2024-03-01","dwjz":"1.2000","gsz":"1.2150","gszzl":"1.25","gztime":"2024-03-04 14:30"});`

func estimateServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/js/110011.js" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func historyServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pingzhongdata/110011.js" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quoteFixture(t *testing.T, estimate, history string, now time.Time) QuoteSource {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	est := estimateServer(t, estimate)
	hist := historyServer(t, history)
	return NewEastmoneyQuoteSource(est.URL, hist.URL, 2*time.Second, loc, func() time.Time { return now })
}

func TestFetchParsesEstimatePayload(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	now := time.Date(2024, 3, 4, 14, 35, 0, 0, loc)
	source := quoteFixture(t, estimateBody, "var Data_other = 1;", now)

	quote, err := source.Fetch("110011")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !quote.OK {
		t.Fatal("quote should be OK")
	}
	if quote.EstimatedNAV != 1.215 {
		t.Errorf("EstimatedNAV = %v, want 1.215", quote.EstimatedNAV)
	}
	if math.Abs(quote.EstimatedRate-0.0125) > 1e-9 {
		t.Errorf("EstimatedRate = %v, want 0.0125", quote.EstimatedRate)
	}
	if quote.OfficialNAV != 1.2 || quote.OfficialNAVDate != "2024-03-01" {
		t.Errorf("official NAV = %v @ %q, want 1.2 @ 2024-03-01", quote.OfficialNAV, quote.OfficialNAVDate)
	}
	if quote.SourceTime != "14:30" {
		t.Errorf("SourceTime = %q, want the clock part only", quote.SourceTime)
	}
	if quote.IsOfficial {
		t.Error("a mid-session estimate must not be flagged official")
	}
}

func TestFetchFlagsConfirmedClose(t *testing.T) {
	closeBody := `jsonpgz({"fundcode":"110011","name":"Yifangda Select","jzrq":"2024-03-04","dwjz":"1.2150","gsz":"1.2150","gszzl":"1.25","gztime":"2024-03-04 15:00"});`
	loc, _ := time.LoadLocation("Asia/Shanghai")

	// Evening after the close batch: the estimate is final.
	evening := time.Date(2024, 3, 4, 21, 0, 0, 0, loc)
	source := quoteFixture(t, closeBody, "", evening)
	quote, err := source.Fetch("110011")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !quote.IsOfficial {
		t.Error("a 15:00 snapshot fetched after 20:00 should be official")
	}

	// Right after the close the batch has not run yet.
	afternoon := time.Date(2024, 3, 4, 15, 10, 0, 0, loc)
	source = quoteFixture(t, closeBody, "", afternoon)
	quote, err = source.Fetch("110011")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if quote.IsOfficial {
		t.Error("a 15:00 snapshot fetched before 20:00 is still provisional")
	}
}

func TestFetchEnrichesWithPriorActualRate(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	// 2024-02-29 and 2024-03-01 midnight, unix milliseconds.
	prev := time.Date(2024, 2, 29, 0, 0, 0, 0, loc).UnixMilli()
	last := time.Date(2024, 3, 1, 0, 0, 0, 0, loc).UnixMilli()
	trend := fmt.Sprintf(
		`var Data_netWorthTrend = [{"x":%d,"y":1.1800,"equityReturn":0.5},{"x":%d,"y":1.2000,"equityReturn":1.69}];var Data_grandTotal = [];`,
		prev, last)

	now := time.Date(2024, 3, 4, 10, 0, 0, 0, loc)
	source := quoteFixture(t, estimateBody, trend, now)

	quote, err := source.Fetch("110011")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	wantRate := (1.2 - 1.18) / 1.18
	if math.Abs(quote.PriorActualRate-wantRate) > 1e-9 {
		t.Errorf("PriorActualRate = %v, want %v", quote.PriorActualRate, wantRate)
	}
	if quote.PriorActualDate != "2024-03-01" {
		t.Errorf("PriorActualDate = %q, want 2024-03-01", quote.PriorActualDate)
	}
}

func TestFetchToleratesMissingHistory(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, loc)
	source := quoteFixture(t, estimateBody, "nothing useful here", now)

	quote, err := source.Fetch("110011")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if quote.PriorActualDate != "" {
		t.Errorf("PriorActualDate = %q, want empty when the trend is unavailable", quote.PriorActualDate)
	}
	if !quote.OK {
		t.Error("the estimate alone still makes a usable quote")
	}
}

func TestFetchUnknownFundCode(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, loc)
	// The provider answers unknown codes with a bare jsonp shell.
	source := quoteFixture(t, `jsonpgz();`, "", now)

	if _, err := source.Fetch("110011"); err == nil {
		t.Fatal("expected an error for an unpublished fund code")
	}
}

func TestFundName(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, loc)
	source := quoteFixture(t, estimateBody, "", now)

	name, err := source.FundName("110011")
	if err != nil {
		t.Fatalf("FundName: %v", err)
	}
	if name != "Yifangda Select" {
		t.Errorf("name = %q, want the published name", name)
	}
}
