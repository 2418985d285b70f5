// Package protocol implements the framed host link used by the analog
// expansion module: a length/sequence header, a VLQ encoded payload of
// command IDs and arguments, a CRC16 trailer and a sync byte.
package protocol

// Version is reported in the data dictionary.
const Version = "0.3.0"

const (
	MessageMax = 512 // output scratch capacity, room for several frames

	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// MessageDest is or'ed into every sequence byte.
	MessageDest     = 0x10
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

// NextSequence returns the sequence byte following seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
