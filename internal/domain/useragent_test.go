package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaSafariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaIPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko)"
	uaAndroid       = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaEdge          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	uaOperaPresto   = "Opera/9.80 (Windows NT 6.1) Presto/2.12.388 Version/12.18"
	uaGenericTablet = "SomeVendor Tablet Browser/1.0"
)

func TestClassifyDeviceType(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{"desktop chrome", uaChromeWindows, DeviceTypeDesktop},
		{"iphone", uaIPhone, DeviceTypeMobile},
		{"android", uaAndroid, DeviceTypeMobile},
		{"ipad matches mobile first", uaIPad, DeviceTypeMobile},
		{"generic tablet", uaGenericTablet, DeviceTypeTablet},
		{"empty", "", DeviceTypeDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDeviceType(tt.userAgent))
		})
	}
}

func TestClassifyBrowser(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{"chrome", uaChromeWindows, "Chrome"},
		{"safari", uaSafariMac, "Safari"},
		{"firefox", uaFirefoxLinux, "Firefox"},
		{"chromium edge reports chrome", uaEdge, "Chrome"},
		{"legacy edge", "Mozilla/5.0 (Windows NT 10.0) Edge/18.17763", "Edge"},
		{"presto opera", uaOperaPresto, "Opera"},
		{"unknown", "curl/8.4.0", UnknownBrowser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyBrowser(tt.userAgent))
		})
	}
}

func TestClassifyOS(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{"windows", uaChromeWindows, "Windows"},
		{"mac", uaSafariMac, "macOS"},
		{"linux", uaFirefoxLinux, "Linux"},
		{"android reports linux", uaAndroid, "Linux"},
		{"iphone reports macos", uaIPhone, "macOS"},
		{"unknown", "curl/8.4.0", UnknownOS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOS(tt.userAgent))
		})
	}
}

func TestSummaries_EmptyIsNotNil(t *testing.T) {
	out := Summaries(nil)
	assert.NotNil(t, out)
	assert.Len(t, out, 0)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("ADMIN")
	assert.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
