package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFailedTasks_CreateListGetDelete(t *testing.T) {
	db := newCallDB(t)
	ctx := context.Background()

	first, err := CreateFailedTask(ctx, db, "r1", "c1", "analysis", 4, "empty file", []byte(`{"record_id":"r1"}`))
	if err != nil {
		t.Fatalf("CreateFailedTask: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := CreateFailedTask(ctx, db, "r2", "c2", "storage", 4, "boom", nil)
	if err != nil {
		t.Fatalf("CreateFailedTask: %v", err)
	}

	list, total, err := ListFailedTasks(ctx, db, 0, 10)
	if err != nil {
		t.Fatalf("ListFailedTasks: %v", err)
	}
	if total != 2 || len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("expected newest first, got total=%d %+v", total, list)
	}

	got, err := GetFailedTask(ctx, db, first.ID)
	if err != nil || got.LastError != "empty file" || string(got.Payload) != `{"record_id":"r1"}` {
		t.Fatalf("GetFailedTask: %v %+v", err, got)
	}

	n, err := DeleteFailedTasksForRecord(ctx, db, "r1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteFailedTasksForRecord = %d, %v", n, err)
	}
	if _, err := GetFailedTask(ctx, db, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
