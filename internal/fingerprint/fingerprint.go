// Package fingerprint derives the dedup key for an ingested feed item.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// New computes the stable dedup key for an item. Two fetches of the same
// item (same title, publish time, source host) always produce the same key.
func New(title string, publishedAt time.Time, sourceHost string) string {
	normalized := fmt.Sprintf("%s_%s_%s",
		strings.ToLower(strings.TrimSpace(title)),
		publishedAt.UTC().Format(time.RFC3339),
		sourceHost,
	)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Hostname extracts the host portion of a source URL. An unparseable URL
// yields the raw string so the fingerprint stays deterministic.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
