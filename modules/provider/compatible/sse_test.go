package compatible

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/rolechat/internal/provider"
)

// chunkedReader returns one element of parts per Read call.
type chunkedReader struct {
	parts []string
	err   error
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.parts) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.parts[0])
	r.parts[0] = r.parts[0][n:]
	if r.parts[0] == "" {
		r.parts = r.parts[1:]
	}
	return n, nil
}

func collectStream(t *testing.T, r io.Reader) ([]string, string, error) {
	t.Helper()
	var got []string
	full, err := readStream(context.Background(), r, func(s string) bool {
		got = append(got, s)
		return true
	})
	return got, full, err
}

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		want    string
		wantErr error
	}{
		{"content", `data: {"choices":[{"delta":{"content":"Hi"}}]}`, "Hi", nil},
		{"no space after marker", `data:{"choices":[{"delta":{"content":"Hi"}}]}`, "Hi", nil},
		{"done sentinel", "data: [DONE]", "", nil},
		{"empty content", `data: {"choices":[{"delta":{"content":""}}]}`, "", nil},
		{"absent content", `data: {"choices":[{"delta":{"role":"assistant"}}]}`, "", nil},
		{"no choices", `data: {"choices":[]}`, "", nil},
		{"malformed json", `data: {"choices":[{"delta":{"con`, "", nil},
		{"keepalive", "data: : OPENROUTER PROCESSING", "", nil},
		{"comment", ": ping", "", nil},
		{"blank", "", "", nil},
		{"other field", "event: message", "", nil},
		{"rate limit error", `data: {"error":{"message":"Rate limit exceeded","code":429}}`, "", provider.ErrRateLimit},
		{"upstream error", `data: {"error":{"message":"upstream died"}}`, "", provider.ErrProviderDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := decodeFrame(tt.line)
			if got != tt.want {
				t.Errorf("decodeFrame() = %q, want %q", got, tt.want)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrameDecoder_SplitAcrossReads(t *testing.T) {
	t.Parallel()

	var d frameDecoder
	first := d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\ndata: {\"choices\":[{\"del"))
	if !slices.Equal(first, []string{`data: {"choices":[{"delta":{"content":"A"}}]}`}) {
		t.Fatalf("first Feed = %q", first)
	}
	if len(d.buf) == 0 {
		t.Fatal("partial line not buffered")
	}

	second := d.Feed([]byte("ta\":{\"content\":\"B\"}}]}\r\n"))
	if !slices.Equal(second, []string{`data: {"choices":[{"delta":{"content":"B"}}]}`}) {
		t.Fatalf("second Feed = %q", second)
	}
	if len(d.buf) != 0 {
		t.Errorf("buffered %d bytes, want 0", len(d.buf))
	}
}

func TestFrameDecoder_Overflow(t *testing.T) {
	t.Parallel()

	var d frameDecoder
	if lines := d.Feed([]byte(strings.Repeat("x", maxFrameSize+1))); len(lines) != 0 {
		t.Fatalf("lines = %d, want 0", len(lines))
	}
	lines := d.Feed([]byte("tail of oversized line\ndata: next\n"))
	if !slices.Equal(lines, []string{"data: next"}) {
		t.Errorf("lines = %q, want only the next line", lines)
	}
}

func TestReadStream_SplitMidJSON(t *testing.T) {
	t.Parallel()

	r := &chunkedReader{parts: []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"cont",
		"ent\":\"lo\"}}]}\n\ndata: [DONE]\n\n",
	}}

	got, full, err := collectStream(t, r)
	if err != nil {
		t.Fatalf("readStream: %v", err)
	}
	if want := []string{"Hel", "lo"}; !slices.Equal(got, want) {
		t.Errorf("fragments = %q, want %q", got, want)
	}
	if full != "Hello" {
		t.Errorf("full = %q, want Hello", full)
	}
}

func TestReadStream_ByteAtATime(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{\"content\":\"é\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n" +
		"data: not json\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n" +
		"data: [DONE]\n"
	parts := make([]string, 0, len(body))
	for i := range len(body) {
		parts = append(parts, body[i:i+1])
	}

	got, full, err := collectStream(t, &chunkedReader{parts: parts})
	if err != nil {
		t.Fatalf("readStream: %v", err)
	}
	if want := []string{"é", "!"}; !slices.Equal(got, want) {
		t.Errorf("fragments = %q, want %q", got, want)
	}
	if full != "é!" {
		t.Errorf("full = %q", full)
	}
}

func TestReadStream_TrailingPartialDropped(t *testing.T) {
	t.Parallel()

	r := strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}")
	got, _, err := collectStream(t, r)
	if err != nil {
		t.Fatalf("readStream: %v", err)
	}
	if !slices.Equal(got, []string{"a"}) {
		t.Errorf("fragments = %q, want [a]", got)
	}
}

func TestReadStream_Errors(t *testing.T) {
	t.Parallel()

	t.Run("read failure", func(t *testing.T) {
		t.Parallel()
		r := &chunkedReader{
			parts: []string{"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"},
			err:   errors.New("connection reset"),
		}
		got, _, err := collectStream(t, r)
		if !errors.Is(err, provider.ErrTransport) {
			t.Errorf("err = %v, want ErrTransport", err)
		}
		if !slices.Equal(got, []string{"a"}) {
			t.Errorf("fragments = %q", got)
		}
	})

	t.Run("in-stream error", func(t *testing.T) {
		t.Parallel()
		r := strings.NewReader("data: {\"error\":{\"message\":\"overloaded\"}}\n")
		_, _, err := collectStream(t, r)
		if !errors.Is(err, provider.ErrProviderDown) {
			t.Errorf("err = %v, want ErrProviderDown", err)
		}
	})

	t.Run("consumer stops", func(t *testing.T) {
		t.Parallel()
		r := strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n")
		calls := 0
		_, err := readStream(context.Background(), r, func(string) bool {
			calls++
			return false
		})
		if !errors.Is(err, errStopped) || calls != 1 {
			t.Errorf("err = %v calls = %d", err, calls)
		}
	})
}
