package wsroom

import "errors"

// Frame kinds for the binary protocol
const (
	FrameAck byte = 1
)

// AckKind is the first header byte of an acknowledgement frame
type AckKind byte

const (
	AckSubscribed   AckKind = 1
	AckUnsubscribed AckKind = 2
)

// String returns the string representation of the ack kind
func (k AckKind) String() string {
	switch k {
	case AckSubscribed:
		return "sub"
	case AckUnsubscribed:
		return "unsub"
	default:
		return "unknown"
	}
}

// frameSeparator terminates the header region of a frame
const frameSeparator byte = 0x00

// ErrEmptyFrame is raised when DecodeFrame is handed no bytes at all
var ErrEmptyFrame = errors.New("wsroom: empty binary frame")

// Frame is one binary protocol unit.
//
// Wire format:
//
//	┌────────────┬──────────────────┬──────┬─────────────────────┐
//	│ Type       │ Header           │ 0x00 │ Payload             │
//	│ (1 byte)   │ (n bytes)        │      │ (rest of the frame) │
//	└────────────┴──────────────────┴──────┴─────────────────────┘
//
// The first zero byte after the type ends the header. Without one the header
// runs to the end of the frame and the payload is empty.
type Frame struct {
	Type    byte
	Header  []byte
	Payload []byte
}

// DecodeFrame splits data into its type, header and payload.
// Callers must not pass an empty slice; DecodeFrame panics with ErrEmptyFrame.
func DecodeFrame(data []byte) Frame {
	if len(data) == 0 {
		panic(ErrEmptyFrame)
	}

	f := Frame{Type: data[0], Header: []byte{}, Payload: []byte{}}
	for i := 1; i < len(data); i++ {
		if data[i] == frameSeparator {
			if i+1 < len(data) {
				f.Payload = append(f.Payload, data[i+1:]...)
			}
			return f
		}
		f.Header = append(f.Header, data[i])
	}
	return f
}

// Encode serializes the frame. Header bytes must be non-zero or the frame
// will not survive a round trip.
func (f Frame) Encode() []byte {
	buf := make([]byte, 0, 2+len(f.Header)+len(f.Payload))
	buf = append(buf, f.Type)
	buf = append(buf, f.Header...)
	buf = append(buf, frameSeparator)
	buf = append(buf, f.Payload...)
	return buf
}

// IsAck reports whether the frame is an acknowledgement carrying a kind byte
func (f Frame) IsAck() bool {
	return f.Type == FrameAck && len(f.Header) > 0
}

// AckKind returns the acknowledgement kind of an ack frame
func (f Frame) AckKind() AckKind {
	if len(f.Header) == 0 {
		return 0
	}
	return AckKind(f.Header[0])
}

// NewAckFrame builds the frame a server sends to confirm a sub or unsub
func NewAckFrame(kind AckKind, room string) Frame {
	return Frame{
		Type:    FrameAck,
		Header:  []byte{byte(kind)},
		Payload: []byte(room),
	}
}
