package webhook

import (
	"net"
	"net/url"
	"strings"
)

// ValidateURL checks that a delivery target is an absolute https URL that
// does not point at this host or a private network by literal address.
// Hostnames are not resolved.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}

	if u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "must use https"}
	}

	if u.User != nil {
		return &ValidationError{Field: "url", Message: "must not contain credentials"}
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return &ValidationError{Field: "url", Message: "missing host"}
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return &ValidationError{Field: "url", Message: "localhost is not allowed"}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
			ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
			return &ValidationError{Field: "url", Message: "address is not publicly routable"}
		}
	}

	return nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}
