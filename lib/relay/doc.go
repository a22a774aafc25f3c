// Package relay implements the relay message model carried inside circuit cells.
//
// # Wire format
//
// A relay cell body is exactly CellBodyLen (509) bytes:
//
//	command    1 byte
//	recognized 2 bytes (always zero here; authenticity is the hop layer's job)
//	stream id  2 bytes (big endian, zero addresses the circuit itself)
//	digest     4 bytes (always zero here)
//	length     2 bytes (big endian, at most MaxBodyLen)
//	body       length bytes
//	padding    remaining bytes (4 zero bytes, then random)
//
// The typed bodies for SENDME, XON, XOFF and END are versioned; unknown
// versions are rejected as protocol violations.
package relay
