package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Stream framing: every frame is START1 START2 followed by a big-endian
// uint16 payload length and the payload itself. Bytes outside a frame are
// skipped, so the reader resynchronizes after garbage (boot logs, noise).
const (
	frameStart1 = 0x94
	frameStart2 = 0xC3

	// maxPayloadLen bounds a single frame; longer length prefixes are
	// treated as corruption and skipped.
	maxPayloadLen = 512
)

// Envelope kinds on the wire.
const (
	kindHello uint8 = 1
	kindText  uint8 = 2
	kindAck   uint8 = 3
)

// Ack statuses.
const (
	ackOK       uint8 = 0
	ackRejected uint8 = 1
)

// envelope is the CBOR payload carried inside a frame.
type envelope struct {
	ID      string `cbor:"1,keyasint"`
	Kind    uint8  `cbor:"2,keyasint"`
	Text    string `cbor:"3,keyasint,omitempty"`
	Dest    string `cbor:"4,keyasint,omitempty"`
	Channel uint32 `cbor:"5,keyasint,omitempty"`
	Status  uint8  `cbor:"6,keyasint,omitempty"`
}

// encMode is the deterministic CBOR encoder for envelopes.
var encMode cbor.EncMode

// decMode is the CBOR decoder for envelopes.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

var errFrameTooLong = errors.New("frame payload too long")

// writeEnvelope frames and writes one envelope to the stream.
func writeEnvelope(w io.Writer, env envelope) error {
	payload, err := encMode.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}
	if len(payload) > maxPayloadLen {
		return errFrameTooLong
	}

	header := []byte{frameStart1, frameStart2, 0, 0}
	binary.BigEndian.PutUint16(header[2:4], uint16(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// readEnvelope reads the next well-formed envelope from the stream, skipping
// any bytes that do not start a frame.
func readEnvelope(r io.Reader) (envelope, error) {
	payload, err := readFramePayload(r)
	if err != nil {
		return envelope{}, err
	}

	var env envelope
	if err := decMode.Unmarshal(payload, &env); err != nil {
		return envelope{}, fmt.Errorf("invalid envelope payload: %w", err)
	}
	return env, nil
}

func readFramePayload(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)

	for {
		if _, err := io.ReadFull(r, header[:1]); err != nil {
			return nil, err
		}
		if header[0] != frameStart1 {
			continue
		}

		if _, err := io.ReadFull(r, header[1:2]); err != nil {
			return nil, err
		}
		if header[1] != frameStart2 {
			continue
		}

		if _, err := io.ReadFull(r, header[2:]); err != nil {
			return nil, err
		}

		payloadLen := int(binary.BigEndian.Uint16(header[2:4]))
		if payloadLen > maxPayloadLen {
			continue
		}

		payload := make([]byte, payloadLen)
		_, err := io.ReadFull(r, payload)
		return payload, err
	}
}
