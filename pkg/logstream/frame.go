package logstream

import (
	"encoding/binary"
)

// The multiplexed stream protocol used by container-engine attach and log
// endpoints: an 8-byte header of one stream-id byte, three reserved bytes and
// a big-endian uint32 payload length, followed by exactly that many payload
// bytes.
const (
	frameHeaderLen = 8
	frameSizeIndex = 4
)

// StreamID tags which output stream a frame belongs to. It is informational:
// the stdout/stderr selection is made when the stream source is opened.
type StreamID byte

const (
	Stdin  StreamID = 0
	Stdout StreamID = 1
	Stderr StreamID = 2
)

// Frame is one length-prefixed chunk of a multiplexed byte stream.
type Frame struct {
	Stream  StreamID
	Payload []byte
}

// EncodeFrame prefixes payload with a multiplex header. It is the writing
// side of the protocol, used by fakes and tools that need to produce
// engine-compatible streams. Zero-length payloads are valid.
func EncodeFrame(stream StreamID, payload []byte) []byte {
	buf := make([]byte, frameHeaderLen+len(payload))
	buf[0] = byte(stream)
	binary.BigEndian.PutUint32(buf[frameSizeIndex:frameHeaderLen], uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	return buf
}

// readFrame reads one complete frame. A frame is surfaced only once all
// length-prescribed payload bytes have been read. ErrStreamClosed propagates
// when the remote end closes before a full frame arrives; that is the normal
// end-of-stream path, not a failure.
func (r *boundedReader) readFrame() (Frame, error) {
	header, err := r.readFull(frameHeaderLen)
	if err != nil {
		return Frame{}, err
	}

	size := binary.BigEndian.Uint32(header[frameSizeIndex:frameHeaderLen])
	payload, err := r.readFull(int(size))
	if err != nil {
		return Frame{}, err
	}

	return Frame{Stream: StreamID(header[0]), Payload: payload}, nil
}
