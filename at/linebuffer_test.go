package at_test

import (
	"testing"

	"i4.energy/across/smsgw/at"
)

func linesOf(events []at.LineEvent) []string {
	var out []string
	for _, e := range events {
		if e.Kind == at.LineEventLine {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestLineBuffer_BasicLineProcessing(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte("AT+CSQ\r\n+CSQ: 15,99\r\nOK\r\n"))

	got := linesOf(events)
	want := []string{"AT+CSQ", "+CSQ: 15,99", "OK"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLineBuffer_PromptDetection(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte("AT+CMGS=\"+1234567890\"\r\n> "))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[1].Kind != at.LineEventPrompt || events[1].Text != ">" {
		t.Errorf("expected prompt event, got %+v", events[1])
	}
}

func TestLineBuffer_PromptWithTrailingSpace(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte("\r\n>   "))
	if len(events) != 1 || events[0].Kind != at.LineEventPrompt {
		t.Fatalf("expected single prompt event, got %+v", events)
	}
}

func TestLineBuffer_NonAnchoredGreaterThanIsData(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte("5>3\r\n"))
	if len(events) != 1 || events[0].Kind != at.LineEventLine || events[0].Text != "5>3" {
		t.Fatalf("expected a single data line, got %+v", events)
	}
}

func TestLineBuffer_IncrementalProcessing(t *testing.T) {
	whole := at.NewLineBuffer(0)
	wholeEvents := whole.Process([]byte("+CSQ: 15,99\r\nOK\r\n"))

	split := at.NewLineBuffer(0)
	var splitEvents []at.LineEvent
	chunks := [][]byte{[]byte("+CSQ"), []byte(": 15"), []byte(",99\r"), []byte("\nOK\r\n")}
	for _, c := range chunks {
		splitEvents = append(splitEvents, split.Process(c)...)
	}

	if len(wholeEvents) != len(splitEvents) {
		t.Fatalf("incrementality violated: whole=%v split=%v", wholeEvents, splitEvents)
	}
	for i := range wholeEvents {
		if wholeEvents[i] != splitEvents[i] {
			t.Errorf("event %d differs: whole=%+v split=%+v", i, wholeEvents[i], splitEvents[i])
		}
	}
}

func TestLineBuffer_MixedLineEndings(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte("a\r\nb\nc\rd\r\n"))
	got := linesOf(events)
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLineBuffer_WhitespaceOnlyDiscarded(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte("   \r\n\t\r\nOK\r\n"))
	got := linesOf(events)
	if len(got) != 1 || got[0] != "OK" {
		t.Fatalf("expected only OK to survive, got %v", got)
	}
}

func TestLineBuffer_PartialTrailingLineRetained(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte("OK\r\nPARTIAL"))
	if len(events) != 1 {
		t.Fatalf("expected only the complete line to be emitted, got %+v", events)
	}
	more := buf.Process([]byte(" DATA\r\n"))
	if len(more) != 1 || more[0].Text != "PARTIAL DATA" {
		t.Fatalf("expected retained partial line to complete, got %+v", more)
	}
}

func TestLineBuffer_MaxSizeTrimsHead(t *testing.T) {
	buf := at.NewLineBuffer(8)
	// A complete line is emitted at once and never counts against the limit.
	if events := buf.Process([]byte("aaaaa\r\n")); len(events) != 1 {
		t.Fatalf("expected the complete line to be emitted, got %+v", events)
	}
	// 12 unterminated bytes exceed the 8-byte limit, so the oldest 4 are dropped.
	buf.Process([]byte("bbbbbbbbcccc"))
	more := buf.Process([]byte("\r\n"))
	if len(more) != 1 || more[0].Text != "bbbbcccc" {
		t.Fatalf("expected the retained tail %q, got %+v", "bbbbcccc", more)
	}
}

func TestLineBuffer_Clear(t *testing.T) {
	buf := at.NewLineBuffer(0)
	buf.Process([]byte("PARTIAL"))
	buf.Clear()
	events := buf.Process([]byte("\r\nOK\r\n"))
	got := linesOf(events)
	if len(got) != 1 || got[0] != "OK" {
		t.Fatalf("expected clear to drop the partial line, got %v", got)
	}
}

func TestLineBuffer_InvalidUTF8Recovery(t *testing.T) {
	buf := at.NewLineBuffer(0)
	events := buf.Process([]byte{0xFF, 0xFE, 'O', 'K', '\r', '\n'})
	if len(events) != 1 {
		t.Fatalf("expected a single recovered line, got %+v", events)
	}
}
