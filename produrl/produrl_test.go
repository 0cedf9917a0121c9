package produrl

import (
	"net"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		allowPrivate bool
		wantErr      bool
	}{
		{
			name: "valid https URL",
			url:  "https://www.pricebefore.com/samsung-galaxy-m05/",
		},
		{
			name: "valid http URL",
			url:  "http://www.pricebefore.com/redmi-a4/",
		},
		{
			name:    "ftp scheme rejected",
			url:     "ftp://example.com/file",
			wantErr: true,
		},
		{
			name:    "missing host rejected",
			url:     "https:///path-only",
			wantErr: true,
		},
		{
			name:    "localhost rejected",
			url:     "https://localhost:8080/product",
			wantErr: true,
		},
		{
			name:    "loopback IP rejected",
			url:     "http://127.0.0.1/product",
			wantErr: true,
		},
		{
			name:    "private IP rejected",
			url:     "https://192.168.1.1/path",
			wantErr: true,
		},
		{
			name:    "local domain rejected",
			url:     "https://nas.local/items",
			wantErr: true,
		},
		{
			name:    "internal domain rejected",
			url:     "https://shop.internal/items",
			wantErr: true,
		},
		{
			name:         "localhost allowed with allowPrivate",
			url:          "http://127.0.0.1:39201/product",
			allowPrivate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url, tt.allowPrivate)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.5", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"100.64.0.1", true},   // CGNAT
		{"169.254.1.1", true},  // link-local
		{"::1", true},          // IPv6 loopback
		{"fc00::1", true},      // IPv6 unique local
		{"fe80::1", true},      // IPv6 link-local
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"104.21.32.1", false},
		{"2606:4700::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP %q", tt.ip)
			}
			if got := IsPrivateIP(ip); got != tt.private {
				t.Errorf("IsPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
			}
		})
	}
}

func TestGenerateProductID(t *testing.T) {
	t.Run("domain and path slug", func(t *testing.T) {
		id := GenerateProductID("https://www.pricebefore.com/samsung-galaxy-m05-4-gb-64-gb/")
		want := "product.web.www-pricebefore-com-samsung-galaxy-m05-4-gb-64-gb"
		if id != want {
			t.Errorf("got %q, want %q", id, want)
		}
	})

	t.Run("special characters collapsed", func(t *testing.T) {
		id := GenerateProductID("https://example.com/a_b/c%20d")
		if !ValidateProductID(id) {
			t.Errorf("generated ID %q is not valid", id)
		}
		if strings.Contains(id, "--") {
			t.Errorf("ID contains consecutive hyphens: %q", id)
		}
	})

	t.Run("long path truncated", func(t *testing.T) {
		id := GenerateProductID("https://example.com/" + strings.Repeat("verylongsegment/", 20))
		slug := strings.TrimPrefix(id, "product.web.")
		if len(slug) > 80 {
			t.Errorf("slug too long: %d chars", len(slug))
		}
		if strings.HasSuffix(slug, "-") {
			t.Errorf("slug has trailing hyphen: %q", slug)
		}
	})

	t.Run("stable for same URL", func(t *testing.T) {
		a := GenerateProductID("https://example.com/phone")
		b := GenerateProductID("https://example.com/phone")
		if a != b {
			t.Errorf("IDs differ for identical URL: %q vs %q", a, b)
		}
	})

	t.Run("hash fallback for unparseable URL", func(t *testing.T) {
		id := GenerateProductID("https://exa mple.com/%zz")
		if !strings.HasPrefix(id, "product.web.") {
			t.Errorf("unexpected prefix: %q", id)
		}
		if !ValidateProductID(id) {
			t.Errorf("fallback ID %q is not valid", id)
		}
	})
}

func TestValidateProductID(t *testing.T) {
	valid := []string{
		"product.web.example-com-phone",
		"product.web.abc123",
	}
	invalid := []string{
		"",
		"product.web.",
		"product.web.UPPER",
		"source.web.example-com",
		"product.web.a b",
		"product.web.a;b",
	}

	for _, id := range valid {
		if !ValidateProductID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range invalid {
		if ValidateProductID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestExtractDomain(t *testing.T) {
	if got := ExtractDomain("https://www.pricebefore.com/redmi-a4/"); got != "www.pricebefore.com" {
		t.Errorf("got %q", got)
	}
	if got := ExtractDomain("://bad"); got != "" {
		t.Errorf("expected empty domain for invalid URL, got %q", got)
	}
}
