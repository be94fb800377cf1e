package utils

import "testing"

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("unexpected domain: %s", domain)
	}
	if normalized != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", normalized)
	}
}

func TestNormalizeURLRejectsEmptyHost(t *testing.T) {
	if _, _, err := NormalizeURL("https:///nothing"); err == nil {
		t.Fatalf("expected error for url without host")
	}
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("see https://youtube.com/watch?v=1 and http://evil.example/x now")
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
	if urls[1] != "http://evil.example/x" {
		t.Fatalf("unexpected url: %s", urls[1])
	}
}

func TestDomainAllowed(t *testing.T) {
	allowed := []string{"youtube.com", "Discord.GG"}
	cases := map[string]bool{
		"youtube.com":     true,
		"www.youtube.com": true,
		"discord.gg":      true,
		"notyoutube.com":  false,
		"evil.example":    false,
	}
	for host, want := range cases {
		if got := DomainAllowed(host, allowed); got != want {
			t.Fatalf("DomainAllowed(%q) = %v, want %v", host, got, want)
		}
	}
	if DomainAllowed("youtube.com", nil) {
		t.Fatalf("empty allowlist must not allow anything")
	}
}
