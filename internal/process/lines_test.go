package process

import (
	"testing"
)

func TestLineWriter_BacklogThenHandler(t *testing.T) {
	w := newLineWriter()
	_, _ = w.Write([]byte("a\r\nb"))
	_, _ = w.Write([]byte("c\nd"))

	if got := w.buffered(); got != "a\nbc" {
		t.Errorf("buffered() = %q, want %q", got, "a\nbc")
	}

	var got []string
	w.attach(func(line string) { got = append(got, line) })
	if len(got) != 2 {
		t.Fatalf("expected 2 replayed lines, got %v", got)
	}

	_, _ = w.Write([]byte("e\n"))
	w.flush()
	w.flush()

	want := []string{"a", "bc", "de"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLineWriter_FlushPartial(t *testing.T) {
	w := newLineWriter()
	var got []string
	w.attach(func(line string) { got = append(got, line) })

	_, _ = w.Write([]byte("tail"))
	if len(got) != 0 {
		t.Fatalf("expected no lines before flush, got %v", got)
	}
	w.flush()
	if len(got) != 1 || got[0] != "tail" {
		t.Errorf("expected [tail], got %v", got)
	}
}
