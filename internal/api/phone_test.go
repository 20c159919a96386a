package api

import (
	"testing"
)

func TestFormatPhoneNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+55 (11) 99999-9999", "5511999999999@s.whatsapp.net"},
		{"5511999999999", "5511999999999@s.whatsapp.net"},
		{"5511999999999@c.us", "5511999999999@c.us"},
		{"120363@g.us", "120363@g.us"},
	}
	for _, tt := range tests {
		if got := FormatPhoneNumber(tt.in); got != tt.want {
			t.Errorf("FormatPhoneNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayPhone(t *testing.T) {
	if got := DisplayPhone("5511999999999@s.whatsapp.net"); got != "5511999999999" {
		t.Errorf("DisplayPhone = %q", got)
	}
	if got := DisplayPhone("5511@c.us"); got != "5511" {
		t.Errorf("DisplayPhone = %q", got)
	}
}

func TestValidateBrazilianPhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"5511999999999", "5511999999999", false},
		{"(11) 99999-9999", "5511999999999", false},
		{"11999999", "", true},
		{"4411999999999", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateBrazilianPhone(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ValidateBrazilianPhone(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestValidateWebhookURL(t *testing.T) {
	valid := []string{"http://localhost:3005/webhook", "https://abc123.ngrok.io/webhook"}
	invalid := []string{"", "localhost:3005", "ftp://host/webhook", "https://"}
	for _, u := range valid {
		if err := ValidateWebhookURL(u); err != nil {
			t.Errorf("ValidateWebhookURL(%q) = %v, want nil", u, err)
		}
	}
	for _, u := range invalid {
		if err := ValidateWebhookURL(u); err == nil {
			t.Errorf("ValidateWebhookURL(%q) = nil, want error", u)
		}
	}
}

func TestContactFilterValues(t *testing.T) {
	yes := true
	v := ContactFilter{Search: "ana", IsBlocked: &yes, Limit: 50}.Values()
	if v.Get("search") != "ana" || v.Get("isBlocked") != "true" || v.Get("limit") != "50" {
		t.Errorf("values = %v", v)
	}
	if v.Has("isGroup") {
		t.Error("nil IsGroup should be omitted")
	}
}
