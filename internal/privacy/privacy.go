// Package privacy scrubs credentials and farmer identifiers from text that
// leaves the process: logs, error telemetry and operator notifications.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// Any scheme: notification URLs such as telegram://token@telegram carry secrets.
	urlPattern    = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)
	bearerPattern = regexp.MustCompile(`(?i)bearer[\s=:]+[A-Za-z0-9\-._~+/]+=*`)
	secretPattern = regexp.MustCompile(`(?i)\b(client_secret|access_token|api[_-]?key|token|password)=[^\s&]+`)
	phonePattern  = regexp.MustCompile(`\+?\d[\d\s-]{7,}\d`)
	ipv4Pattern   = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// ScrubMessage masks phone numbers and replaces URLs, bearer tokens and
// secret form values with stable placeholders.
func ScrubMessage(message string) string {
	s := phonePattern.ReplaceAllStringFunc(message, MaskFarmerID)
	s = urlPattern.ReplaceAllStringFunc(s, AnonymizeURL)
	s = bearerPattern.ReplaceAllString(s, "Bearer [TOKEN]")
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}

// AnonymizeURL keeps the scheme and a host category and hashes the rest, so
// equal endpoints still group together in telemetry.
func AnonymizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{u.Scheme}
	if host := u.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if u.Port() != "" {
		parts = append(parts, "port-"+u.Port())
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, ":") + u.Path))
	return fmt.Sprintf("%s://%s/url-%x", u.Scheme, categorizeHost(u.Hostname()), hash[:6])
}

// MaskFarmerID hides all but the last four characters of an identifier.
// Farmer IDs are usually WhatsApp phone numbers.
func MaskFarmerID(id string) string {
	digits := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, id)
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

// categorizeHost anonymizes hostnames while preserving useful categorization
func categorizeHost(host string) string {
	switch {
	case host == "":
		return "no-host"
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case ipv4Pattern.MatchString(host) || strings.Contains(host, ":"):
		return "public-ip"
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}
	return "service-" + host
}

// isPrivateIP checks if the host is a private IP address (both IPv4 and IPv6)
func isPrivateIP(host string) bool {
	privateRanges := []string{
		"10.", "172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.", "172.22.", "172.23.",
		"172.24.", "172.25.", "172.26.", "172.27.", "172.28.", "172.29.", "172.30.", "172.31.",
		"192.168.", "169.254.",
		"fc00:", "fd00:", "fe80:",
	}
	h := strings.ToLower(host)
	for _, prefix := range privateRanges {
		if strings.HasPrefix(h, prefix) {
			return true
		}
	}
	return false
}
