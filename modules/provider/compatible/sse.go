package compatible

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/flemzord/rolechat/internal/provider"
)

const (
	// maxFrameSize bounds a single buffered SSE line (512 KiB). A longer line
	// is discarded up to its terminating newline.
	maxFrameSize = 512 * 1024

	readChunkSize = 4 * 1024
)

// frameDecoder accumulates raw body bytes and releases only complete,
// newline-terminated lines. A line split across reads stays buffered until
// its remainder arrives, so it is never parsed half-received.
type frameDecoder struct {
	buf      []byte
	overflow bool
}

// Feed appends p and returns every line it completed, trimmed of
// surrounding whitespace (including a trailing \r).
func (d *frameDecoder) Feed(p []byte) []string {
	d.buf = append(d.buf, p...)

	var lines []string
	consumed := 0
	for {
		i := bytes.IndexByte(d.buf[consumed:], '\n')
		if i < 0 {
			break
		}
		line := d.buf[consumed : consumed+i]
		consumed += i + 1
		if d.overflow {
			d.overflow = false
			continue
		}
		lines = append(lines, strings.TrimSpace(string(line)))
	}

	if consumed > 0 {
		d.buf = slices.Clone(d.buf[consumed:])
	}
	if len(d.buf) > maxFrameSize {
		d.buf = d.buf[:0]
		d.overflow = true
	}
	return lines
}

// decodeFrame extracts the incremental content of one SSE line. Comments,
// blank separators, non-data fields, the [DONE] sentinel and unparseable
// payloads yield "". An error object in the payload is returned as an error.
func decodeFrame(line string) (string, error) {
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", nil
	}
	data = strings.TrimSpace(data)
	if data == "" || data == "[DONE]" {
		return "", nil
	}

	var chunk apiStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", nil
	}
	if chunk.Error != nil {
		return "", mapAPIError(*chunk.Error)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

// errStopped reports that emit asked the reader to stop.
var errStopped = errors.New("compatible: stream consumer stopped")

// readStream decodes an SSE body from r, calling emit for every non-empty
// content fragment in order. It returns the concatenation of all emitted
// fragments. A trailing line without a newline at EOF is discarded.
func readStream(ctx context.Context, r io.Reader, emit func(string) bool) (string, error) {
	var (
		dec  frameDecoder
		full strings.Builder
		buf  = make([]byte, readChunkSize)
	)
	for {
		n, readErr := r.Read(buf)
		for _, line := range dec.Feed(buf[:n]) {
			content, err := decodeFrame(line)
			if err != nil {
				return full.String(), err
			}
			if content == "" {
				continue
			}
			full.WriteString(content)
			if !emit(content) {
				return full.String(), errStopped
			}
		}

		switch {
		case errors.Is(readErr, io.EOF):
			return full.String(), nil
		case readErr != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return full.String(), ctxErr
			}
			return full.String(), fmt.Errorf("compatible: reading stream: %w: %w", readErr, provider.ErrTransport)
		}
	}
}
