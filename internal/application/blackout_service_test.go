package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBlackoutService_CreateBlackout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     BlackoutInput
		wantStart time.Time
		wantEnd   time.Time
		allDay    bool
	}{
		{
			name:      "all day span covers whole local days",
			input:     BlackoutInput{StartDate: "2024-01-14", EndDate: "2024-01-16"},
			wantStart: time.Date(2024, time.January, 14, 6, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.January, 17, 6, 0, 0, 0, time.UTC),
			allDay:    true,
		},
		{
			name:      "timed span runs continuously",
			input:     BlackoutInput{StartDate: "2024-01-14", EndDate: "2024-01-15", StartTime: "18:00", EndTime: "09:00"},
			wantStart: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.January, 15, 15, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryStore()
			svc := NewBlackoutService(store, sequentialIDs("blackout"), fixedNow)
			b, err := svc.CreateBlackout(context.Background(), CreateBlackoutParams{Input: tt.input, Offset: centralOffset})
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if !b.StartsAt.Equal(tt.wantStart) || !b.EndsAt.Equal(tt.wantEnd) || b.AllDay != tt.allDay {
				t.Fatalf("unexpected blackout %+v", b)
			}
		})
	}
}

func TestBlackoutService_CreateBlackout_Rejects(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := NewBlackoutService(store, sequentialIDs("blackout"), fixedNow)

	_, err := svc.CreateBlackout(context.Background(), CreateBlackoutParams{Input: BlackoutInput{StartDate: "2024-01-14", EndDate: "2024-01-16"}})
	if !errors.Is(err, ErrTimezoneOffsetMissing) {
		t.Fatalf("expected ErrTimezoneOffsetMissing, got %v", err)
	}

	cases := map[string]BlackoutInput{
		"end_date":   {StartDate: "2024-01-16", EndDate: "2024-01-14"},
		"end_time":   {StartDate: "2024-01-14", EndDate: "2024-01-14", StartTime: "09:00"},
		"start_date": {EndDate: "2024-01-14"},
	}
	for field, input := range cases {
		_, err := svc.CreateBlackout(context.Background(), CreateBlackoutParams{Input: input, Offset: centralOffset})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%s: expected ValidationError, got %v", field, err)
		}
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
		}
	}
	if len(store.blackouts) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestBlackoutService_ListAndDelete(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := NewBlackoutService(store, sequentialIDs("blackout"), fixedNow)
	b, err := svc.CreateBlackout(context.Background(), CreateBlackoutParams{Input: BlackoutInput{StartDate: "2024-01-14", EndDate: "2024-01-14"}, Offset: centralOffset})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	from := time.Date(2024, time.January, 14, 20, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	listed, err := svc.ListBlackouts(context.Background(), &from, &to)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one overlapping blackout, got %v %v", listed, err)
	}

	if _, err := svc.ListBlackouts(context.Background(), &to, &from); err == nil {
		t.Fatalf("expected reversed range to be rejected")
	}

	if err := svc.DeleteBlackout(context.Background(), b.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := svc.DeleteBlackout(context.Background(), b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
