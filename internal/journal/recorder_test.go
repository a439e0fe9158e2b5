package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestJSONLRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "receipts.jsonl")

	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	entry := Entry{RunID: "run-1", Command: "test", Step: "transfer", Receipt: "5xyz", State: "confirmed"}
	recorder.Record(entry)
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	// recording after close is a no-op
	recorder.Record(entry)

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lines := 0
	var decoded Entry
	for scanner.Scan() {
		lines++
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("json decode: %v", err)
		}
	}
	if lines != 1 {
		t.Fatalf("expected one line in recorder output, got %d", lines)
	}
	if decoded.Receipt != entry.Receipt || decoded.State != entry.State {
		t.Fatalf("unexpected decoded entry %+v", decoded)
	}
}
