package header

import (
	"encoding/binary"
)

const (
	srcPort     = 0
	dstPort     = 2
	seqNum      = 4
	ackNum      = 8
	dataOffset  = 12
	tcpFlags    = 13
	winSize     = 14
	tcpChecksum = 16
	urgentPtr   = 18
)

// Flags that may be set in a TCP segment.
const (
	TCPFlagFin = 1 << iota
	TCPFlagSyn
	TCPFlagRst
	TCPFlagPsh
	TCPFlagAck
	TCPFlagUrg
)

// TCPFields contains the fields of a TCP packet. It is used to describe the
// fields of a packet that needs to be encoded.
type TCPFields struct {
	SrcPort uint16

	DstPort uint16

	SeqNum uint32

	AckNum uint32

	DataOffset uint8

	Flags uint8

	WindowSize uint16

	Checksum uint16

	UrgentPointer uint16
}

// TCP represents a TCP header stored in network byte order.
type TCP []byte

const (
	// TCPMinimumSize is the minimum size of a valid TCP packet.
	TCPMinimumSize = 20

	// TCPProtocolNumber is TCP's transport protocol number.
	TCPProtocolNumber = 6
)

func (b TCP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(b[srcPort:])
}

func (b TCP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(b[dstPort:])
}

func (b TCP) SequenceNumber() uint32 {
	return binary.BigEndian.Uint32(b[seqNum:])
}

func (b TCP) AckNumber() uint32 {
	return binary.BigEndian.Uint32(b[ackNum:])
}

func (b TCP) DataOffset() uint8 {
	return (b[dataOffset] >> 4) * 4
}

func (b TCP) Payload() []byte {
	return b[b.DataOffset():]
}

func (b TCP) Flags() uint8 {
	return b[tcpFlags]
}

func (b TCP) WindowSize() uint16 {
	return binary.BigEndian.Uint16(b[winSize:])
}

func (b TCP) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[tcpChecksum:])
}

// Encode populates a TCP header in b with the fields in f. b must be at
// least TCPMinimumSize bytes; f.DataOffset is expressed in bytes (a
// multiple of 4, as built by the caller) and covers the fixed header plus
// any options.
func (b TCP) Encode(f *TCPFields) {
	binary.BigEndian.PutUint16(b[srcPort:], f.SrcPort)
	binary.BigEndian.PutUint16(b[dstPort:], f.DstPort)
	binary.BigEndian.PutUint32(b[seqNum:], f.SeqNum)
	binary.BigEndian.PutUint32(b[ackNum:], f.AckNum)
	b[dataOffset] = (f.DataOffset / 4) << 4
	b[tcpFlags] = f.Flags
	binary.BigEndian.PutUint16(b[winSize:], f.WindowSize)
	binary.BigEndian.PutUint16(b[tcpChecksum:], f.Checksum)
	binary.BigEndian.PutUint16(b[urgentPtr:], f.UrgentPointer)
}

// SetChecksum overwrites just the checksum field of an already-encoded
// header.
func (b TCP) SetChecksum(xsum uint16) {
	binary.BigEndian.PutUint16(b[tcpChecksum:], xsum)
}

// CalculateChecksum computes the TCP checksum over the header+payload
// (with the checksum field itself read as zero) combined with the IPv4
// pseudo-header partial sum computed by the caller via PseudoHeaderChecksum.
func (b TCP) CalculateChecksum(partial uint16) uint16 {
	return checksum(b, uint32(partial))
}

// PseudoHeaderChecksum computes the partial checksum contribution of the
// IPv4 pseudo-header (source, destination, protocol, TCP length), to be
// folded into CalculateChecksum.
func PseudoHeaderChecksum(src, dst Address, totalLen uint16) uint16 {
	var pseudo [12]byte
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[9] = TCPProtocolNumber
	binary.BigEndian.PutUint16(pseudo[10:12], totalLen)
	return checksum(pseudo[:], 0)
}
