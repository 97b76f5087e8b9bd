package progress

import (
	"bytes"
	"testing"
)

func TestNewReporterInCI(t *testing.T) {
	t.Setenv("CI", "true")
	if _, ok := NewReporter(&bytes.Buffer{}).(*CIReporter); !ok {
		t.Error("expected CIReporter when CI is set")
	}
}

func TestNewReporterInTerminal(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	if _, ok := NewReporter(&bytes.Buffer{}).(*TerminalReporter); !ok {
		t.Error("expected TerminalReporter outside CI")
	}
}

func TestCallbackDrivesCIReporter(t *testing.T) {
	var buf bytes.Buffer
	cb := Callback(&CIReporter{w: &buf})

	cb(1, 2, "a.png")
	cb(2, 2, "b.pdf")

	want := "Processing 2 documents\n[1/2] a.png\n[2/2] b.pdf\nBatch complete\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTerminalReporterWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	r := &TerminalReporter{w: &buf}
	r.Start(3)
	r.Update(1, "a.png")
	r.Finish()
	if buf.Len() == 0 {
		t.Error("expected progress output")
	}
}
