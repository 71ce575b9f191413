package inbox

import (
	"context"
	"testing"
)

func TestMemoryDedupes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first, err := m.Record(ctx, "e1", "business.service.upserted.v1")
	if err != nil || !first {
		t.Fatalf("first delivery should be recorded: %v %v", first, err)
	}
	again, err := m.Record(ctx, "e1", "business.service.upserted.v1")
	if err != nil || again {
		t.Fatalf("redelivery should be dropped: %v %v", again, err)
	}
	other, _ := m.Record(ctx, "e2", "business.service.upserted.v1")
	if !other {
		t.Fatal("distinct event should be recorded")
	}
}

func TestMemorySeenOnlyAfterRecord(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if seen, _ := m.Seen(ctx, "e1"); seen {
		t.Fatal("unrecorded event reported as seen")
	}
	if _, err := m.Record(ctx, "e1", "business.staff.upserted.v1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if seen, _ := m.Seen(ctx, "e1"); !seen {
		t.Fatal("recorded event not reported as seen")
	}
}
