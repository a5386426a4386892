// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

// internetChecksum computes the RFC 1071 16-bit one's-complement checksum
// over b. golang.org/x/net/icmp computes this internally when marshaling an
// ICMPv6 message (using the IPv6 pseudo-header), but leaves IPv4 callers to
// supply their own checksum field, so the primitive is reimplemented here
// rather than pulled from a library that does not expose it standalone.
//
// Callers sum header+payload with the checksum field zeroed; the result
// verifies (equals zero) when recomputed over the full datagram including
// the checksum that was written.
func internetChecksum(b []byte) uint16 {
	var sum uint32

	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	return ^uint16(sum)
}
