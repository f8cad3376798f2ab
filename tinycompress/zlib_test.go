package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func inflate(t *testing.T, stream []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("zlib header rejected: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate failed: %v", err)
	}
	return out
}

func TestCompressRoundTrip(t *testing.T) {
	in := []byte(`{"version":"ads1x18","commands":{"config_ads1x18 oid=%c":5}}`)
	stream, err := Compress(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := inflate(t, stream); !bytes.Equal(got, in) {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", got, in)
	}
}

func TestWriterMultipleBlocks(t *testing.T) {
	in := bytes.Repeat([]byte("0123456789abcdef"), 100)
	var buf bytes.Buffer
	w := NewWriterSize(&buf, 256)
	for i := 0; i < len(in); i += 100 {
		end := i + 100
		if end > len(in) {
			end = len(in)
		}
		if _, err := w.Write(in[i:end]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.BlocksWritten() < 2 {
		t.Errorf("expected several stored blocks, got %d", w.BlocksWritten())
	}
	if got := inflate(t, buf.Bytes()); !bytes.Equal(got, in) {
		t.Error("multi-block stream did not inflate to the input")
	}
	if _, err := w.Write([]byte{1}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCompressEmpty(t *testing.T) {
	stream, err := Compress(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := inflate(t, stream); len(got) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(got))
	}
}
