package bus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mkleene/chime/internal/protocol"
)

// Panel socket opcodes.
const (
	opHandshake = 0
	opFrame     = 1
	opClose     = 2
)

const maxFramePayload = 1 << 20

// envelope is the JSON payload of an opFrame. A frame carries exactly
// one of a command (panel -> daemon), a reply (daemon -> panel) or an
// event broadcast (daemon -> panel).
type envelope struct {
	Command *protocol.Message `json:"command,omitempty"`
	Reply   *protocol.Reply   `json:"reply,omitempty"`
	Event   *protocol.Message `json:"event,omitempty"`
}

// writeFrame sends one frame: [opcode LE u32][length LE u32][payload].
func writeFrame(w io.Writer, opcode uint32, payload []byte) error {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], opcode)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one frame, allocating a buffer of the exact size
// declared in the header.
func readFrame(r io.Reader) (uint32, []byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	opcode := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxFramePayload {
		return 0, nil, fmt.Errorf("frame payload too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return opcode, payload, nil
}

func writeEnvelope(w io.Writer, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return writeFrame(w, opFrame, payload)
}
