package affiliate

import (
	"strings"
)

// Tags holds the affiliate identifiers. Empty string means unset.
type Tags struct {
	AmazonTag      string
	CuePublisherID string
}

const (
	amazonDomain = "amazon.in"
	cueRedirect  = "https://linksredirect.com/"
)

// Merchants routed through the Cuelinks redirector.
var cueMerchants = []string{"myntra", "ajio", "flipkart"}

// Rewrite returns rawURL carrying the configured affiliate identifier.
// First match wins; anything unmatched comes back unchanged.
func Rewrite(rawURL string, tags Tags) string {
	if rawURL == "" {
		return rawURL
	}
	if strings.Contains(rawURL, amazonDomain) {
		if tags.AmazonTag == "" {
			return rawURL
		}
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + "tag=" + tags.AmazonTag
	}
	if tags.CuePublisherID != "" && isCueMerchant(rawURL) {
		return cueRedirect + "?pub_id=" + tags.CuePublisherID + "&url=" + Quote(rawURL)
	}
	return rawURL
}

func isCueMerchant(rawURL string) bool {
	for _, m := range cueMerchants {
		if strings.Contains(rawURL, m) {
			return true
		}
	}
	return false
}

// Quote percent-encodes every byte except ASCII letters, digits, "_.-~" and "/".
// The redirector wants "/" kept literal, unlike url.QueryEscape.
func Quote(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '_', '.', '-', '~', '/':
		return true
	}
	return false
}
