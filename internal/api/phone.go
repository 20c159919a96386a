package api

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidPhone is returned by ValidateBrazilianPhone.
var ErrInvalidPhone = errors.New("invalid number, use 5511999999999")

// ErrInvalidWebhookURL is returned for webhook URLs that are not http(s).
var ErrInvalidWebhookURL = errors.New("invalid URL, use http:// or https://")

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhoneNumber turns a typed number into a WhatsApp JID. Values that
// already contain "@" are returned unchanged.
func FormatPhoneNumber(phone string) string {
	if strings.Contains(phone, "@") {
		return phone
	}
	return digits(phone) + "@s.whatsapp.net"
}

// DisplayPhone strips the JID suffix for display.
func DisplayPhone(jid string) string {
	jid = strings.TrimSuffix(jid, "@s.whatsapp.net")
	return strings.TrimSuffix(jid, "@c.us")
}

// ValidateBrazilianPhone accepts 13-digit numbers starting with 55, and
// 11-digit numbers which get the 55 country code prepended.
func ValidateBrazilianPhone(phone string) (string, error) {
	d := digits(phone)
	switch {
	case strings.HasPrefix(d, "55") && len(d) == 13:
		return d, nil
	case len(d) == 11:
		return "55" + d, nil
	}
	return "", ErrInvalidPhone
}

// ValidateWebhookURL accepts absolute http and https URLs only.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ErrInvalidWebhookURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidWebhookURL
	}
	return nil
}
