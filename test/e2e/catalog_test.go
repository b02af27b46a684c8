//go:build e2e

// Package e2e exercises a running catalog service over HTTP.
//
// Prerequisites:
//   - cmd/catalog running against a product store
//   - optionally Kafka and Redis, for event-driven indexing and the shared cache
//
// Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseURL() string {
	if v := os.Getenv("E2E_CATALOG_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func client(t *testing.T) *http.Client {
	t.Helper()
	c := &http.Client{Timeout: 10 * time.Second}
	resp, err := c.Get(baseURL() + "/health/live")
	if err != nil {
		t.Skipf("catalog service unavailable: %v", err)
	}
	resp.Body.Close()
	return c
}

func getJSON(t *testing.T, c *http.Client, path string, into any) int {
	t.Helper()
	resp, err := c.Get(baseURL() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if into != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, into), string(body))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	c := client(t)
	var report map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, c, "/health/ready", &report))
	assert.Contains(t, report, "components")
}

// TestUpsertThenSearch posts a product under a fresh supplier and polls until
// the index serves it, which covers both direct and event-driven indexing.
func TestUpsertThenSearch(t *testing.T) {
	c := client(t)
	supplier := fmt.Sprintf("E2E%d", time.Now().UnixNano())
	payload := fmt.Sprintf(`[{"productId":"%s-1","supplier":"%s","itemDescription":"e2e sparkling water 1L","digitalBrandName":"Aquafresh"}]`,
		supplier, supplier)

	resp, err := c.Post(baseURL()+"/api/products", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	var accepted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, accepted)
	t.Logf("upsert accepted, indexing=%v", accepted["indexing"])

	var products []map[string]any
	require.Eventually(t, func() bool {
		products = nil
		code := getJSON(t, c, "/api/search/supplier?supplierIds="+url.QueryEscape(supplier), &products)
		return code == http.StatusOK && len(products) > 0
	}, 30*time.Second, 500*time.Millisecond)
	assert.Equal(t, supplier+"-1", products[0]["productId"])

	var filtered map[string]any
	require.Equal(t, http.StatusOK,
		getJSON(t, c, "/api/productBySupplier/"+url.PathEscape(supplier)+"?brandSearch=aquafresh", &filtered))
	assert.EqualValues(t, 1, filtered["totalProducts"])

	var one map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, c, "/api/products/"+url.PathEscape(supplier+"-1"), &one))
	assert.Equal(t, "Aquafresh", one["digitalBrandName"])
}

func TestIndexStatsAndAnalytics(t *testing.T) {
	c := client(t)
	getJSON(t, c, "/api/search/lucene?query=water&limit=5", nil)

	var stats map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, c, "/api/search/index/stats", &stats))
	assert.Equal(t, "success", stats["status"])
	assert.Contains(t, stats["stats"], "Index contains")

	var summary map[string]any
	require.Eventually(t, func() bool {
		summary = nil
		if getJSON(t, c, "/api/analytics", &summary) != http.StatusOK {
			return false
		}
		n, _ := summary["total_searches"].(float64)
		return n >= 1
	}, 10*time.Second, 500*time.Millisecond)
}

func TestSyntaxErrorIsClientError(t *testing.T) {
	c := client(t)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, c, "/api/search/lucene?query="+url.QueryEscape(`"unterminated`), nil))
}
