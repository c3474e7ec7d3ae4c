package cache

import (
	"bytes"
	"io"
	"net/http"
	"testing"
)

func TestResponseToEntry(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://kodeenhunter.com/index.html", nil)
	body := []byte("<html>home</html>")
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type": []string{"text/html"},
		},
		Body:    io.NopCloser(bytes.NewReader(body)),
		Request: req,
	}

	entry, err := ResponseToEntry(resp)
	if err != nil {
		t.Fatalf("ResponseToEntry() error = %v", err)
	}

	if !bytes.Equal(entry.Data, body) {
		t.Errorf("Data = %q, want %q", entry.Data, body)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", entry.StatusCode)
	}
	if entry.URL != "https://kodeenhunter.com/index.html" {
		t.Errorf("URL = %q", entry.URL)
	}
	if entry.Headers.Get("Content-Type") != "text/html" {
		t.Errorf("Content-Type = %q", entry.Headers.Get("Content-Type"))
	}
	if entry.CachedAt.IsZero() {
		t.Error("CachedAt not set")
	}

	// Body restored for caller
	restored, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(restored, body) {
		t.Errorf("restored body = %q", restored)
	}
}

func TestResponseToEntry_Nil(t *testing.T) {
	if _, err := ResponseToEntry(nil); err == nil {
		t.Error("Expected error for nil response")
	}
}

func TestEntryToResponse_IndependentBodies(t *testing.T) {
	entry := &CacheEntry{
		Data:       []byte(`{"ok":true}`),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
	}
	req, _ := http.NewRequest(http.MethodGet, "https://kodeenhunter.com/x", nil)

	first := EntryToResponse(entry, req)
	second := EntryToResponse(entry, req)

	a, _ := io.ReadAll(first.Body)
	b, _ := io.ReadAll(second.Body)
	if string(a) != `{"ok":true}` || string(b) != `{"ok":true}` {
		t.Errorf("bodies = %q, %q", a, b)
	}
	if first.Status != "200 OK" {
		t.Errorf("Status = %q", first.Status)
	}
	if first.ContentLength != int64(len(entry.Data)) {
		t.Errorf("ContentLength = %d", first.ContentLength)
	}
	if first.Request != req {
		t.Error("Request not attached")
	}

	first.Header.Set("X-Mutated", "1")
	if entry.Headers.Get("X-Mutated") != "" {
		t.Error("response headers must not alias the entry")
	}
}
