package lump

// Kind is the top-level message class carried in bits 7:6 of a LUMP
// header byte.
type Kind uint8

const (
	KindSYS  Kind = 0b00
	KindCMD  Kind = 0b01
	KindINFO Kind = 0b10
	KindDATA Kind = 0b11
)

func (k Kind) String() string {
	switch k {
	case KindSYS:
		return "SYS"
	case KindCMD:
		return "CMD"
	case KindINFO:
		return "INFO"
	case KindDATA:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Single-byte SYS sentinels. These are the only valid SYS frames; any
// other SYS header byte is Malformed.
const (
	sysSync byte = 0x00
	sysNack byte = 0x02
	sysAck  byte = 0x04
)

// CmdID is the sub-command carried in the low 3 bits of a CMD header
// byte (CMD frames have no secondary sub-kind byte).
type CmdID uint8

const (
	CmdType    CmdID = 0x00
	CmdModes   CmdID = 0x01
	CmdSpeed   CmdID = 0x02
	CmdSelect  CmdID = 0x03
	CmdExtMode CmdID = 0x06
)

// InfoSubKind selects the meaning of an INFO frame's payload. It is
// carried in the secondary "sub-kind" byte that follows an INFO
// header, after masking out extModeBit.
type InfoSubKind uint8

const (
	InfoName    InfoSubKind = 0x00
	InfoRaw     InfoSubKind = 0x01
	InfoPct     InfoSubKind = 0x02
	InfoSI      InfoSubKind = 0x03
	InfoSymbol  InfoSubKind = 0x04
	InfoMapping InfoSubKind = 0x05
	InfoFormat  InfoSubKind = 0x80
)

// extModeBit, set in an INFO frame's sub-kind byte, indicates the
// effective mode index is (header low 3 bits) | 8 rather than the
// header's low 3 bits alone. It is the only way to address modes 8-15
// in an INFO frame; DATA frames carry no such bit, and the device
// instead sends a CMD_EXT_MODE frame just before a DATA frame for
// modes 8-15 (see Port.dataModeExt).
const extModeBit byte = 0x20

// infoMotorComboBase is the first of the motor-combination sub-kinds
// (8..12), used by composite/combined devices. We store their
// payloads verbatim rather than interpreting them.
const infoMotorComboBase = 8
const infoMotorComboLast = 12

func isMotorCombo(sub InfoSubKind) bool {
	return sub >= infoMotorComboBase && sub <= infoMotorComboLast
}

// DataType is the element width/format of one value in a mode's
// sample, as declared by that mode's FORMAT info message.
type DataType uint8

const (
	DataType8   DataType = 0
	DataType16  DataType = 1
	DataType32  DataType = 2
	DataTypeFloat DataType = 3
)

func (d DataType) Size() int {
	switch d {
	case DataType8:
		return 1
	case DataType16:
		return 2
	case DataType32, DataTypeFloat:
		return 4
	default:
		return 0
	}
}

// TypeID identifies the device model, as reported by a TYPE command.
type TypeID uint16

// TypeIDAny is the wildcard sentinel that matches any attached
// LUMP-UART device in AssertTypeID. The original firmware's
// device-type-id enumeration starts at 1, so 0 is never a real device
// and is safe to reserve as "don't care".
const TypeIDAny TypeID = 0

// A handful of known device type ids, used by the end-to-end scenario
// tests and useful to callers building human-readable diagnostics.
const (
	TypeIDColorDistanceSensor TypeID = 0x25
	TypeIDInteractiveMotor    TypeID = 0x26
	TypeIDTechnicLargeMotor   TypeID = 0x2E
)

// MaxPayload is the largest payload a LUMP frame can carry.
const MaxPayload = 32

// payloadLengths is the ordered set of payload lengths selectable by
// the 3-bit length field in a header byte: index i means payload
// length 1<<i.
var payloadLengths = [6]int{1, 2, 4, 8, 16, 32}

// lengthIndex returns the 3-bit length field value for n bytes, and
// false if n is not one of {1,2,4,8,16,32}.
func lengthIndex(n int) (uint8, bool) {
	for i, l := range payloadLengths {
		if l == n {
			return uint8(i), true
		}
	}
	return 0, false
}
