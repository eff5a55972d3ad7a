package main

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":    {Data: []byte("<html>console</html>")},
		"assets/app.js": {Data: []byte("console.log('tables')")},
	}
}

func TestSPAHandler(t *testing.T) {
	t.Parallel()

	h := spaHandler(testFS())
	tests := []struct {
		path string
		want string
	}{
		{"/", "<html>console</html>"},
		{"/assets/app.js", "console.log('tables')"},
		{"/containers/abc", "<html>console</html>"}, // client-side route
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status %d", tt.path, rec.Code)
			continue
		}
		if got := rec.Body.String(); got != tt.want {
			t.Errorf("GET %s = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestGzipMiddleware(t *testing.T) {
	t.Parallel()

	h := gzipMiddleware(spaHandler(testFS()))

	req := httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "tables") {
		t.Errorf("decompressed body = %q", body)
	}

	// No Accept-Encoding: plain response
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))
	if rec.Header().Get("Content-Encoding") != "" || rec.Body.String() != "console.log('tables')" {
		t.Errorf("plain response = %q (%q)", rec.Body.String(), rec.Header().Get("Content-Encoding"))
	}
}
