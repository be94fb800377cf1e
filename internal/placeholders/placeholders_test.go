package placeholders

import (
	"testing"
	"time"
)

func TestRenderServer(t *testing.T) {
	got := Render("Welcome to {server}!", Vars{Server: "Test Server"})
	if got != "Welcome to Test Server!" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRenderMemberCount(t *testing.T) {
	got := Render("We have {memberCount} members!", Vars{MemberCount: 100})
	if got != "We have 100 members!" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRenderDateTimeAndUser(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	got := Render("{mention} ({user}) joined on {date} at {time} {unknown}", Vars{
		Now:         now,
		User:        "alice",
		UserMention: "<@123456789012345678>",
	})
	want := "<@123456789012345678> (alice) joined on 2024-03-09 at 14:05 {unknown}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderRepeatedPlaceholder(t *testing.T) {
	got := Render("{server} / {server}", Vars{Server: "A"})
	if got != "A / A" {
		t.Fatalf("unexpected output: %q", got)
	}
}
