// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// icmpHeaderLen is the length, in bytes, of the type/code/checksum/id/seq
// ICMPv4 and ICMPv6 echo header.
const icmpHeaderLen = 8

// payloadLen is the minimum length of an outgoing probe payload: an 8-byte
// float64 timestamp, a hop byte, a probe-index byte, and padding.
const payloadLen = 16

// ipv4HeaderLenMask extracts the IHL nibble from the first byte of an IPv4 header.
const ipv4HeaderLenMask = 0x0F

const ipv4WordLen = 4

// ipv6HeaderLen is the fixed length of an IPv6 header (no extension headers).
const ipv6HeaderLen = 40

// ClassificationKind enumerates the outcomes of Codec.Classify.
type ClassificationKind int

const (
	// Other is a structurally valid ICMP message that either does not
	// belong to this session (identifier mismatch) or is not one of the
	// three kinds the engine correlates against probes.
	Other ClassificationKind = iota
	// Malformed is a message too short or inconsistent to parse.
	Malformed
	// EchoReply indicates the destination answered the probe directly.
	EchoReply
	// TimeExceeded indicates a router along the path decremented TTL/hop
	// limit to zero.
	TimeExceeded
	// Unreachable indicates a Destination Unreachable message.
	Unreachable
)

// Classification is the result of parsing one inbound ICMP datagram.
type Classification struct {
	Kind       ClassificationKind
	Sequence   uint16
	Identifier uint16
	Code       uint8
}

// Describe renders a short, human-readable description of the
// classification, used by ContinuousPinger to surface unexpected packets
// without the caller needing to know ICMP type/code numbers.
func (c Classification) Describe(family AddrFamily) string {
	switch c.Kind {
	case EchoReply:
		return "Echo Reply"
	case TimeExceeded:
		return "Time Exceeded (TTL Exceeded)"
	case Unreachable:
		return fmt.Sprintf("Destination Unreachable (%s)", describeUnreachableCode(family, c.Code))
	case Malformed:
		return "Malformed ICMP message"
	default:
		return "Other ICMP message"
	}
}

func describeUnreachableCode(family AddrFamily, code uint8) string {
	if family == FamilyV6 {
		switch code {
		case 0:
			return "No Route"
		case 3:
			return "Address Unreachable"
		case 4:
			return "Port Unreachable"
		default:
			return "Unreachable"
		}
	}
	switch code {
	case 0:
		return "Network Unreachable"
	case 1:
		return "Host Unreachable"
	case 3:
		return "Port Unreachable"
	default:
		return "Unreachable"
	}
}

// codec builds ICMPv4/ICMPv6 Echo Request probes and classifies inbound
// datagrams for a single session identifier.
type codec struct {
	family           AddrFamily
	identifier       uint16
	filterIdentifier bool
}

// newCodec constructs a codec for the given family and session identifier.
// filterIdentifier should be false when the socket is an unprivileged ICMP
// datagram socket, since the kernel rewrites the identifier to its own
// value and the codec's own-identifier check would reject every reply.
func newCodec(family AddrFamily, identifier uint16, filterIdentifier bool) *codec {
	return &codec{family: family, identifier: identifier, filterIdentifier: filterIdentifier}
}

// BuildProbe constructs a wire-ready Echo Request carrying a fixed-layout
// payload that records hop, probeIndex, and the send timestamp.
func (c *codec) BuildProbe(sequence uint16, hop, probeIndex uint8) ([]byte, error) {
	return c.BuildEcho(sequence, hop, buildProbePayload(hop, probeIndex))
}

// BuildEcho marshals an Echo Request carrying payload verbatim. hop is not
// encoded on the wire; it exists so callers that already have a payload
// (e.g. round-trip tests) still read naturally at the call site.
func (c *codec) BuildEcho(sequence uint16, hop uint8, payload []byte) ([]byte, error) {
	msgType, err := c.echoRequestType()
	if err != nil {
		return nil, err
	}

	msg := &icmp.Message{
		Type: msgType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(c.identifier),
			Seq:  int(sequence),
			Data: payload,
		},
	}

	// IPv6 checksums are computed by the kernel over a pseudo-header we do
	// not have here, so Marshal(nil) leaves the field at zero, matching the
	// wire format mandated for outgoing IPv6 Echo in §6.
	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("marshal echo request: %w", err)
	}

	if c.family == FamilyV4 {
		binary.BigEndian.PutUint16(b[2:4], 0)
		binary.BigEndian.PutUint16(b[2:4], internetChecksum(b))
	}

	return b, nil
}

func (c *codec) echoRequestType() (icmp.Type, error) {
	switch c.family {
	case FamilyV4:
		return ipv4.ICMPTypeEcho, nil
	case FamilyV6:
		return ipv6.ICMPTypeEchoRequest, nil
	default:
		return nil, fmt.Errorf("unknown address family %v", c.family)
	}
}

// buildProbePayload encodes the fixed-layout probe header described in
// §4.1: an 8-byte send timestamp (seconds since epoch, big-endian float64
// bits), the hop, the probe index, and zero padding out to payloadLen.
func buildProbePayload(hop, probeIndex uint8) []byte {
	b := make([]byte, payloadLen)
	binary.BigEndian.PutUint64(b[0:8], math.Float64bits(float64(time.Now().UnixNano())/float64(time.Second)))
	b[8] = hop
	b[9] = probeIndex
	return b
}

// Classify parses an inbound datagram, which may or may not carry an outer
// IP header depending on the socket type (§4.1), and reports what kind of
// ICMP message it is. When identifier filtering is enabled, messages whose
// identifier does not match this codec's session identifier are reported as
// Other, never as EchoReply/TimeExceeded/Unreachable, so callers never have
// to repeat the identifier check.
func (c *codec) Classify(datagram []byte) Classification {
	icmpBytes, err := locateICMP(c.family, datagram)
	if err != nil {
		return Classification{Kind: Malformed}
	}
	if len(icmpBytes) < icmpHeaderLen {
		return Classification{Kind: Malformed}
	}

	msgType := icmpBytes[0]
	code := icmpBytes[1]

	switch {
	case c.isEchoReplyType(msgType):
		id := binary.BigEndian.Uint16(icmpBytes[4:6])
		seq := binary.BigEndian.Uint16(icmpBytes[6:8])
		if c.filterIdentifier && id != c.identifier {
			return Classification{Kind: Other}
		}
		return Classification{Kind: EchoReply, Sequence: seq, Identifier: id}

	case c.isTimeExceededType(msgType):
		return c.classifyInner(TimeExceeded, icmpBytes[icmpHeaderLen:], code)

	case c.isUnreachableType(msgType):
		return c.classifyInner(Unreachable, icmpBytes[icmpHeaderLen:], code)

	default:
		return Classification{Kind: Other}
	}
}

func (c *codec) classifyInner(kind ClassificationKind, inner []byte, code uint8) Classification {
	innerID, innerSeq, err := parseInnerEchoHeader(c.family, inner)
	if err != nil {
		return Classification{Kind: Malformed}
	}
	if c.filterIdentifier && innerID != c.identifier {
		return Classification{Kind: Other}
	}
	return Classification{Kind: kind, Sequence: innerSeq, Identifier: innerID, Code: code}
}

func (c *codec) isEchoReplyType(t byte) bool {
	if c.family == FamilyV4 {
		return t == byte(ipv4.ICMPTypeEchoReply)
	}
	return t == byte(ipv6.ICMPTypeEchoReply)
}

func (c *codec) isTimeExceededType(t byte) bool {
	if c.family == FamilyV4 {
		return t == byte(ipv4.ICMPTypeTimeExceeded)
	}
	return t == byte(ipv6.ICMPTypeTimeExceeded)
}

func (c *codec) isUnreachableType(t byte) bool {
	if c.family == FamilyV4 {
		return t == byte(ipv4.ICMPTypeDestinationUnreachable)
	}
	return t == byte(ipv6.ICMPTypeDestinationUnreachable)
}

// errTruncated is returned internally when a datagram is too short to hold
// the header the outer/inner detection rules expect.
var errTruncated = errors.New("truncated datagram")

// locateICMP implements the outer-header detection rules of §4.1: IPv4
// datagrams carrying a full IP header (first nibble 4, length >= 20) have
// that header stripped; everything else, including all of IPv6, is treated
// as bare ICMP at offset 0.
func locateICMP(family AddrFamily, datagram []byte) ([]byte, error) {
	if family == FamilyV6 {
		return datagram, nil
	}

	if len(datagram) >= 20 && datagram[0]>>4 == 4 {
		ihl := int(datagram[0]&ipv4HeaderLenMask) * ipv4WordLen
		if len(datagram) < ihl {
			return nil, errTruncated
		}
		return datagram[ihl:], nil
	}

	return datagram, nil
}

// parseInnerEchoHeader extracts the identifier and sequence from the
// original datagram nested inside a Time Exceeded / Unreachable message, per
// the inner-datagram extraction rules of §4.1.
func parseInnerEchoHeader(family AddrFamily, inner []byte) (id, seq uint16, err error) {
	var innerICMP []byte

	if family == FamilyV6 {
		if len(inner) < ipv6HeaderLen+icmpHeaderLen {
			return 0, 0, errTruncated
		}
		innerICMP = inner[ipv6HeaderLen : ipv6HeaderLen+icmpHeaderLen]
	} else {
		if len(inner) < 20 {
			return 0, 0, errTruncated
		}
		ihl := int(inner[0]&ipv4HeaderLenMask) * ipv4WordLen
		if len(inner) < ihl+icmpHeaderLen {
			return 0, 0, errTruncated
		}
		innerICMP = inner[ihl : ihl+icmpHeaderLen]
	}

	return binary.BigEndian.Uint16(innerICMP[4:6]), binary.BigEndian.Uint16(innerICMP[6:8]), nil
}
