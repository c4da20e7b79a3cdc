package relay

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/pkg/generic"
)

var frames = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// writeFrame encodes msg as one newline terminated JSON frame in a pooled
// buffer and hands it to write. The frame is only valid during write.
func writeFrame(msg protocol.Message, write func([]byte) error) error {
	return frames.With(func(buf *bytes.Buffer) error {
		if err := json.NewEncoder(buf).Encode(msg); err != nil {
			return errors.Wrap(err, "failed to marshal message")
		}
		return write(buf.Bytes())
	})
}
