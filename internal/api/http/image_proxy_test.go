package apihttp

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newImageUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/t/p/w500/poster.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pngHeader)
	})
	mux.HandleFunc("/t/p/w92/thumb.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	mux.HandleFunc("/t/p/w500/page.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/t/p/w500/broken.png", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)
	return upstream
}

func TestImageProxy(t *testing.T) {
	upstream := newImageUpstream(t)
	server := newTestServer(t, &fakeCatalog{}, WithImageProxy(upstream.URL+"/t/p/", nil), WithLogger(testLogger()))

	tests := []struct {
		name        string
		url         string
		status      int
		contentType string
	}{
		{name: "sniffed png", url: "/api/image?path=/poster.png", status: http.StatusOK, contentType: "image/png"},
		{name: "explicit width", url: "/api/image?path=/thumb.jpg&width=w92", status: http.StatusOK, contentType: "image/jpeg"},
		{name: "missing path", url: "/api/image", status: http.StatusBadRequest},
		{name: "no leading slash", url: "/api/image?path=poster.png", status: http.StatusBadRequest},
		{name: "traversal", url: "/api/image?path=/..%2Fsecret", status: http.StatusBadRequest},
		{name: "nested", url: "/api/image?path=/a/b.png", status: http.StatusBadRequest},
		{name: "query chars", url: "/api/image?path=/a.png%3Fx%3D1", status: http.StatusBadRequest},
		{name: "bad width", url: "/api/image?path=/poster.png&width=w9999", status: http.StatusBadRequest},
		{name: "not found", url: "/api/image?path=/missing.png", status: http.StatusNotFound},
		{name: "not an image", url: "/api/image?path=/page.html", status: http.StatusBadGateway},
		{name: "upstream error", url: "/api/image?path=/broken.png", status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != tt.status {
				t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
			}
			if tt.contentType == "" {
				return
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Fatalf("unexpected content type: %q", got)
			}
			if rec.Header().Get("Cache-Control") == "" {
				t.Fatalf("missing Cache-Control")
			}
			if rec.Body.Len() == 0 {
				t.Fatalf("empty body")
			}
		})
	}
}

func TestImageProxyClientRejectsForeignRedirect(t *testing.T) {
	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://localhost:1"+r.URL.Path, http.StatusFound)
	}))
	t.Cleanup(redirector.Close)

	client := newImageProxyClient(redirector.URL)
	resp, err := client.Get(redirector.URL + "/w500/a.png")
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected redirect to another host to fail")
	}
}

func TestValidateImagePath(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{path: "/abc.jpg", ok: true},
		{path: "/A-b_c.1.png", ok: true},
		{path: "", ok: false},
		{path: "/", ok: false},
		{path: "abc.jpg", ok: false},
		{path: "/../x", ok: false},
		{path: "/a b.jpg", ok: false},
		{path: "//evil.test/x.jpg", ok: false},
	}
	for _, tt := range tests {
		err := validateImagePath(tt.path)
		if (err == nil) != tt.ok {
			t.Fatalf("validateImagePath(%q) error = %v, want ok=%v", tt.path, err, tt.ok)
		}
	}
}
