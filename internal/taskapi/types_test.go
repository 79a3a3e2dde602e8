package taskapi

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEpochMillis_Time(t *testing.T) {
	tests := []struct {
		name string
		in   EpochMillis
		want *time.Time
	}{
		{"empty", "", nil},
		{"garbage", "not-a-number", nil},
		{"zero", "0", nil},
		{"negative", "-5", nil},
		{"valid", "1700000000000", ptr(time.UnixMilli(1700000000000))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Time()
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Time() = %v, want %v", got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("Time() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEpochMillis_UnmarshalJSON(t *testing.T) {
	var task Task
	// Mixed representations: string, bare number, null, missing.
	blob := `{"id":"x","date_created":"1700000000000","due_date":1700000100000,"date_closed":null}`
	if err := json.Unmarshal([]byte(blob), &task); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if task.DateCreated.Time() == nil {
		t.Error("date_created (string): parsed to nil")
	}
	if task.DueDate.Time() == nil {
		t.Error("due_date (number): parsed to nil")
	}
	if task.DateClosed.Time() != nil {
		t.Error("date_closed (null): expected nil")
	}
	if task.DateUpdated.Time() != nil {
		t.Error("date_updated (missing): expected nil")
	}
}

func ptr(t time.Time) *time.Time { return &t }
