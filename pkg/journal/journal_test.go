package journal

import (
	"encoding/json"
	"testing"
	"time"
)

type event struct {
	Target string `json:"target"`
	Action string `json:"action"`
}

func TestWriteRotateRead(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "actions")
	clock := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(event{Target: "1", Action: "attack"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(event{Target: "2", Action: "scout"}); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(event{Target: "3", Action: "attack"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening an hour appends a second frame to the same file.
	w = NewWriter(dir, "actions")
	w.now = func() time.Time { return clock }
	if err := w.Write(event{Target: "4", Action: "vetoed"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := Files(dir, "actions")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 hourly files, got %v", files)
	}

	var got []string
	for _, f := range files {
		err := ReadFile(f, func(line json.RawMessage) error {
			var e event
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			got = append(got, e.Target+":"+e.Action)
			return nil
		})
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
	}
	want := []string{"1:attack", "2:scout", "3:attack", "4:vetoed"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}
