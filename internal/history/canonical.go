package history

import (
	"net/url"
	"sort"
	"strings"
)

// CanonicalizeURL normalizes a URL for duplicate detection: lowercase
// host without a www. prefix, tracking params stripped, remaining query
// params sorted, no fragment, no trailing slash. Unparseable input is
// returned as given.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host
	u.Fragment = ""

	kept := url.Values{}
	for key, vals := range u.Query() {
		if strings.HasPrefix(key, "utm_") || key == "ref" {
			continue
		}
		for _, v := range vals {
			kept.Add(key, v)
		}
	}
	if len(kept) == 0 {
		u.RawQuery = ""
	} else {
		pairs := make([]string, 0, len(kept))
		for key, vals := range kept {
			for _, v := range vals {
				pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(v))
			}
		}
		sort.Strings(pairs)
		u.RawQuery = strings.Join(pairs, "&")
	}

	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// normalizeKey is the looser key used for dedup within one history batch.
func normalizeKey(rawURL string) string {
	return strings.TrimSuffix(strings.ToLower(rawURL), "/")
}
