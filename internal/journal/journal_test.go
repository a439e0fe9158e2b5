package journal

import "testing"

func TestMemoryRecordSnapshot(t *testing.T) {
	m := NewMemory(2)
	entry := Entry{Command: "fund", Step: "payer-airdrop", State: "confirmed"}
	m.Record(entry)

	snapshot := m.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snapshot))
	}
	if snapshot[0].Step != entry.Step {
		t.Fatalf("unexpected entry step")
	}

	snapshot[0].Step = "mutated"
	if m.Snapshot()[0].Step != entry.Step {
		t.Fatalf("snapshot shares storage with the journal")
	}
}
