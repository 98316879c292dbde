// Package privacy provides helpers for keeping personal data out of logs.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
)

// AnonymizeIP truncates an IP address to remove the host-identifying portion.
//
// IPv4 addresses keep their /24 prefix ("192.168.1.47" -> "192.168.1.0").
// IPv6 addresses keep their /48 prefix.
//
// Returns "invalid" for unparseable IP addresses, and "unknown" for empty strings.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// HashIdentifier returns a short SHA-256 prefix of value so log lines and traces
// can be correlated without carrying recipient identifiers in the clear.
func HashIdentifier(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8])
}
