package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})
	if buf.Available() != 5 {
		t.Errorf("expected 5 bytes available, got %d", buf.Available())
	}
	buf.Pop(2)
	if buf.Available() != 3 || buf.Data()[0] != 3 {
		t.Errorf("after Pop(2) expected [3 4 5], got %v", buf.Data())
	}
	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("over-pop should empty the buffer, %d left", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	s := NewScratchOutput()
	s.Output([]byte{1, 2, 3})
	s.Output([]byte{4, 5})
	if s.CurPosition() != 5 {
		t.Errorf("expected position 5, got %d", s.CurPosition())
	}

	s.Update(0, 99)
	s.Update(7, 42) // past the write position, ignored
	if !bytes.Equal(s.Result(), []byte{99, 2, 3, 4, 5}) {
		t.Errorf("unexpected result %v", s.Result())
	}
	if since := s.DataSince(2); !bytes.Equal(since, []byte{3, 4, 5}) {
		t.Errorf("DataSince(2) = %v", since)
	}
	if s.DataSince(6) != nil {
		t.Error("DataSince beyond position should be nil")
	}

	s.Reset()
	if s.CurPosition() != 0 || len(s.Result()) != 0 {
		t.Error("Reset did not clear the buffer")
	}
}

func TestScratchOutputTruncates(t *testing.T) {
	s := NewScratchOutput()
	s.Output(make([]byte, ScratchSize+10))
	if s.CurPosition() != ScratchSize {
		t.Errorf("expected truncation at %d, got %d", ScratchSize, s.CurPosition())
	}
}

func TestFifoBufferWrap(t *testing.T) {
	f := NewFifoBuffer(8)
	if !f.IsEmpty() {
		t.Fatal("new FIFO should be empty")
	}
	if n := f.Write([]byte{1, 2, 3, 4, 5, 6}); n != 6 {
		t.Fatalf("expected 6 written, got %d", n)
	}
	f.Pop(4)
	if n := f.Write([]byte{7, 8, 9, 10}); n != 4 {
		t.Fatalf("expected 4 written across the wrap, got %d", n)
	}
	if !bytes.Equal(f.Data(), []byte{5, 6, 7, 8, 9, 10}) {
		t.Errorf("unexpected wrapped data %v", f.Data())
	}
	if f.Free() != 1 {
		t.Errorf("expected 1 byte free, got %d", f.Free())
	}
	if n := f.Write([]byte{11, 12}); n != 1 {
		t.Errorf("expected only 1 byte to fit, wrote %d", n)
	}

	out := make([]byte, 3)
	if n := f.Read(out); n != 3 || !bytes.Equal(out, []byte{5, 6, 7}) {
		t.Errorf("Read returned %d %v", n, out)
	}
	f.Reset()
	if f.Available() != 0 {
		t.Error("Reset did not empty the FIFO")
	}
}
