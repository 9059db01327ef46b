package ioc

import (
	"strings"
	"testing"
	"unicode/utf8"

	"threatfeed/internal/model"
)

func findByType(matches []Match, typ model.IndicatorType) []Match {
	var out []Match
	for _, m := range matches {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func TestDeterministicScoring(t *testing.T) {
	sha := strings.Repeat("ab", 32) // 64 hex chars
	text := "Exploit for CVE-2024-12345 beacons to 10.1.2.3 and 8.8.8.8, payload " + sha

	matches := Extract(text)

	cves := findByType(matches, model.IndicatorCVE)
	if len(cves) != 1 || cves[0].Confidence != 1.0 {
		t.Fatalf("expected one CVE with confidence 1.0, got %+v", cves)
	}

	ips := findByType(matches, model.IndicatorIP)
	if len(ips) != 2 {
		t.Fatalf("expected 2 IPs, got %+v", ips)
	}
	for _, ip := range ips {
		switch ip.Value {
		case "10.1.2.3":
			if ip.Confidence != 0.5 {
				t.Errorf("private IP confidence = %v, want 0.5", ip.Confidence)
			}
		case "8.8.8.8":
			if ip.Confidence != 0.9 {
				t.Errorf("public IP confidence = %v, want 0.9", ip.Confidence)
			}
		default:
			t.Errorf("unexpected IP %q", ip.Value)
		}
	}

	hashes := findByType(matches, model.IndicatorSHA256)
	if len(hashes) != 1 {
		t.Fatalf("expected one sha256, got %+v", hashes)
	}
	if hashes[0].Confidence != 0.95 {
		t.Errorf("sha256 confidence = %v, want 0.95", hashes[0].Confidence)
	}
	if got := findByType(matches, model.IndicatorMD5); len(got) != 0 {
		t.Errorf("sha256 digest mis-tagged as md5: %+v", got)
	}
}

func TestConfidenceBounds(t *testing.T) {
	text := "CVE-2023-4444 at https://malware.example.net/drop from c2.badhost.io, " +
		"mail attacker@badhost.io, ip 192.168.1.5, md5 " + strings.Repeat("0", 32)
	for _, m := range Extract(text) {
		if m.Confidence < 0 || m.Confidence > 1 {
			t.Errorf("%s %q confidence %v out of [0,1]", m.Type, m.Value, m.Confidence)
		}
	}
}

func TestURLDomainPrecedence(t *testing.T) {
	matches := Extract("see https://example.org/a for details")

	urls := findByType(matches, model.IndicatorURL)
	if len(urls) != 1 || urls[0].Value != "https://example.org/a" {
		t.Fatalf("expected url match for full link, got %+v", urls)
	}
	for _, d := range findByType(matches, model.IndicatorDomain) {
		if d.NormalizedValue == "example.org" {
			t.Errorf("domain %q should be excluded, already part of a URL match", d.Value)
		}
	}
}

func TestFalsePositiveSuppression(t *testing.T) {
	matches := Extract("connects to 127.0.0.1 and example.com then 0.0.0.0")
	if len(matches) != 0 {
		t.Fatalf("expected all candidates suppressed, got %+v", matches)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	matches := Extract("8.8.8.8 resolved again to 8.8.8.8")
	ips := findByType(matches, model.IndicatorIP)
	if len(ips) != 1 {
		t.Fatalf("expected one IP after dedup, got %+v", ips)
	}
}

func TestExtractionOrder(t *testing.T) {
	// Pattern priority wins over position: the CVE at the end of the text
	// still comes first.
	matches := Extract("beacon 8.8.8.8 delivered CVE-2022-0001")
	if len(matches) < 2 {
		t.Fatalf("expected at least 2 matches, got %+v", matches)
	}
	if matches[0].Type != model.IndicatorCVE {
		t.Errorf("first match = %s, want cve", matches[0].Type)
	}
	if matches[1].Type != model.IndicatorIP {
		t.Errorf("second match = %s, want ip", matches[1].Type)
	}
}

func TestContextWindow(t *testing.T) {
	prefix := strings.Repeat("x", 80)
	text := prefix + " 8.8.8.8 " + strings.Repeat("y", 80)
	matches := Extract(text)
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %+v", matches)
	}
	ctx := matches[0].Context
	if !strings.Contains(ctx, "8.8.8.8") {
		t.Fatalf("context %q missing the match", ctx)
	}
	// 50 chars each side plus the value itself
	if len(ctx) > 50+len("8.8.8.8")+50+2 {
		t.Errorf("context too wide: %d chars", len(ctx))
	}
}

func TestContextWindowMultibyteBoundary(t *testing.T) {
	// A multi-byte character sitting exactly where the window opens must
	// survive whole, never sliced into invalid bytes.
	text := "ñ" + strings.Repeat("x", 48) + " 8.8.8.8 " + strings.Repeat("y", 48) + "é."
	matches := Extract(text)
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %+v", matches)
	}
	ctx := matches[0].Context
	if !utf8.ValidString(ctx) {
		t.Fatalf("context is not valid UTF-8: %q", ctx)
	}
	if !strings.HasPrefix(ctx, "ñ") {
		t.Errorf("leading multi-byte character lost: %q", ctx)
	}
	if !strings.Contains(ctx, "8.8.8.8") {
		t.Errorf("context %q missing the match", ctx)
	}
}

func TestEmailExtraction(t *testing.T) {
	matches := Extract("phishing from spear@attacker-mail.net today")
	emails := findByType(matches, model.IndicatorEmail)
	if len(emails) != 1 || emails[0].Confidence != 0.75 {
		t.Fatalf("expected one email at 0.75, got %+v", emails)
	}
	if emails[0].NormalizedValue != "spear@attacker-mail.net" {
		t.Errorf("normalized = %q", emails[0].NormalizedValue)
	}
}
