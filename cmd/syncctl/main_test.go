package main

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("6h", now)
	if err != nil || !got.Equal(now.Add(-6*time.Hour)) {
		t.Fatalf("expected relative duration, got %v %v", got, err)
	}

	got, err = parseSince("2024-02-28T10:00:00Z", now)
	if err != nil || !got.Equal(time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected RFC3339 timestamp, got %v %v", got, err)
	}

	got, err = parseSince("1709294400", now)
	if err != nil || !got.Equal(time.Unix(1709294400, 0)) {
		t.Fatalf("expected epoch seconds, got %v %v", got, err)
	}

	if got, err := parseSince("", now); got != nil || err != nil {
		t.Fatalf("expected nil for empty value, got %v %v", got, err)
	}
	if _, err := parseSince("yesterday-ish", now); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}
