package fetch

import (
	"context"
	"net/http"
	"time"
)

// CheckOnline reports whether the probe URL answers with a 2xx within
// the timeout. Both search and ingestion refuse to start offline rather
// than failing halfway through.
func CheckOnline(ctx context.Context, client *http.Client, probeURL string, timeout time.Duration) bool {
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
