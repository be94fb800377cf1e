package utils

import (
	"testing"
	"time"
)

func TestIsSnowflake(t *testing.T) {
	valid := []string{"12345678901234567", "123456789012345678", "1234567890123456789"}
	for _, id := range valid {
		if !IsSnowflake(id) {
			t.Fatalf("expected %s to be valid", id)
		}
	}
	invalid := []string{"", "1234", "12345678901234567890", "12345678901234567a", " 123456789012345678"}
	for _, id := range invalid {
		if IsSnowflake(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}

func TestSnowflakeTime(t *testing.T) {
	created, ok := SnowflakeTime("175928847299117063")
	if !ok {
		t.Fatalf("expected parse")
	}
	want := time.Date(2016, 4, 30, 11, 18, 25, 796000000, time.UTC)
	if !created.Equal(want) {
		t.Fatalf("unexpected time: %s", created)
	}
}
