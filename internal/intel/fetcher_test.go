package intel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestFetchSuccess(t *testing.T) {
	client := NewClient(time.Second, 10, nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if got := req.Header.Get("Auth-Key"); got != "secret" {
			t.Fatalf("missing auth header, got %q", got)
		}
		body, _ := io.ReadAll(req.Body)
		if !bytes.Contains(body, []byte(`"get_iocs"`)) {
			t.Fatalf("unexpected request body: %s", body)
		}
		return jsonResponse(http.StatusOK, `{
			"query_status": "ok",
			"data": [{"ioc": "1.2.3.4", "ioc_type": "ip", "confidence_level": 90, "first_seen": "2026-08-28 08:00:00 UTC"}]
		}`), nil
	})

	fetcher := client.Bind(ThreatFoxSource("secret"))
	result := fetcher.Fetch(context.Background())

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Source != "threatfox" || result.Count != 1 || len(result.Items) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Items[0].Severity != models.SeverityHigh {
		t.Fatalf("unexpected severity %s", result.Items[0].Severity)
	}
}

func TestFetchContainsHTTPStatusFailure(t *testing.T) {
	client := NewClient(time.Second, 10, nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `oops`), nil
	})

	result := client.Bind(RansomwatchSource()).Fetch(context.Background())
	if result.Error == "" {
		t.Fatal("expected error to be recorded")
	}
	if len(result.Items) != 0 || result.Count != 0 {
		t.Fatalf("failed fetch must carry no items: %+v", result)
	}
}

func TestFetchContainsNetworkFailure(t *testing.T) {
	client := NewClient(time.Second, 10, nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	result := client.Bind(URLhausSource("")).Fetch(context.Background())
	if result.Error == "" {
		t.Fatal("expected error to be recorded")
	}
	if result.Items == nil {
		t.Fatal("items must be an empty slice, not nil, for the cache contract")
	}
}

func TestFetchContainsDecodeFailure(t *testing.T) {
	client := NewClient(time.Second, 10, nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{not json`), nil
	})

	result := client.Bind(RansomwatchSource()).Fetch(context.Background())
	if result.Error == "" {
		t.Fatal("expected decode failure to be recorded")
	}
}
