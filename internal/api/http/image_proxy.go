package apihttp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moviesearch/internal/providers/tmdb"
)

const (
	maxProxiedImageBytes = int64(10 * 1024 * 1024)
	maxImagePathLength   = 128
)

// handleImageProxy serves a poster or profile image from the configured CDN.
// Only the path fragment and width are taken from the client, so the
// upstream host can never be chosen by the caller.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	fragment := strings.TrimSpace(r.URL.Query().Get("path"))
	if err := validateImagePath(fragment); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	width := strings.TrimSpace(r.URL.Query().Get("width"))
	if width == "" {
		width = tmdb.WidthPoster
	}
	if !tmdb.ValidWidth(width) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unsupported width")
		return
	}

	target := tmdb.NewImages(s.imageBase).ImageURL(width, &fragment)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid image path")
		return
	}
	req.Header.Set("User-Agent", "moviesearch/1.0")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := s.imageClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
		return
	}
	if resp.ContentLength > maxProxiedImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "image too large")
		return
	}

	limited := io.LimitReader(resp.Body, maxProxiedImageBytes)
	head := make([]byte, 512)
	n, readErr := io.ReadFull(limited, head)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read image")
		return
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	// CDN paths are content addressed.
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(head)
	_, _ = io.Copy(w, limited)
}

func validateImagePath(fragment string) error {
	if fragment == "" {
		return errors.New("missing path")
	}
	if len(fragment) < 2 {
		return errors.New("invalid image path")
	}
	if len(fragment) > maxImagePathLength {
		return errors.New("path too long")
	}
	if !strings.HasPrefix(fragment, "/") || strings.Count(fragment, "/") != 1 || strings.Contains(fragment, "..") {
		return errors.New("invalid image path")
	}
	for _, c := range fragment[1:] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
		default:
			return errors.New("invalid image path")
		}
	}
	return nil
}

// newImageProxyClient follows redirects only while they stay on the CDN host.
func newImageProxyClient(base string) *http.Client {
	allowedHost := ""
	if parsed, err := url.Parse(base); err == nil {
		allowedHost = strings.ToLower(parsed.Hostname())
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			if req.URL == nil {
				return errors.New("redirect missing url")
			}
			if scheme := strings.ToLower(req.URL.Scheme); scheme != "http" && scheme != "https" {
				return errors.New("unsupported url scheme")
			}
			if strings.ToLower(req.URL.Hostname()) != allowedHost {
				return errors.New("redirect left the image host")
			}
			return nil
		},
	}
}
