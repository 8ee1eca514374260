//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080")

func TestSystem_E2E_ItemLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	// A random id keeps reruns against a long-lived service independent.
	id := uint64(rand.Int63n(1<<40)) + 1<<41
	itemURL := fmt.Sprintf("%s/items/%d", baseURL, id)

	do(t, http.MethodPost, baseURL+"/items", map[string]any{"id": id, "name": "foo"}, nil, http.StatusCreated)

	var list []map[string]any
	do(t, http.MethodGet, baseURL+"/items", nil, &list, http.StatusOK)
	if !containsItem(list, id, "foo") {
		t.Fatalf("created item %d missing from %v", id, list)
	}

	var updated map[string]any
	do(t, http.MethodPut, itemURL, map[string]any{"id": id, "name": "bar"}, &updated, http.StatusOK)
	if updated["name"] != "bar" {
		t.Fatalf("updated=%v", updated)
	}

	do(t, http.MethodDelete, itemURL, nil, nil, http.StatusNoContent)

	list = nil
	do(t, http.MethodGet, baseURL+"/items", nil, &list, http.StatusOK)
	if containsItem(list, id, "bar") {
		t.Fatalf("deleted item %d still listed", id)
	}

	do(t, http.MethodDelete, itemURL, nil, nil, http.StatusNotFound)
}

func TestSystem_E2E_Welcome(t *testing.T) {
	resp, err := http.Get(baseURL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(raw), "Welcome") {
		t.Fatalf("status=%d body=%q", resp.StatusCode, string(raw))
	}
}

func containsItem(list []map[string]any, id uint64, name string) bool {
	for _, it := range list {
		if v, ok := it["id"].(float64); ok && uint64(v) == id && it["name"] == name {
			return true
		}
	}
	return false
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == http.StatusOK {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func do(t *testing.T, method, url string, body any, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want=%d", method, url, resp.StatusCode, want)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
