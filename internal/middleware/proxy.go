package middleware

import (
	"log/slog"
	"net"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() honour X-Forwarded-For only when the peer
// is inside one of trustedCIDRs. Loopback and private ranges are trusted by
// echo unless disabled; the CIDRs given here are added to them.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	opts := make([]echo.TrustOption, 0, len(trustedCIDRs))
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		opts = append(opts, echo.TrustIPRange(network))
	}
	e.IPExtractor = echo.ExtractIPFromXFFHeader(opts...)
}
