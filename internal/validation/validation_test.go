package validation

import (
	"testing"
	"time"
)

func TestIsValidID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"shop-1", true},
		{"shp_a1b2c3d4e5f6a7b8c9d0e1f2", true},
		{"RSV_2024_0001", true},
		{"a", true},

		// Invalid cases
		{"", false},
		{"shop 1", false},           // space
		{"shop/../etc", false},      // traversal
		{"shop;DROP TABLE", false},  // injection
		{"샵-1", false},              // non-ASCII
		{"shop%201", false},         // encoded
		{string(make([]byte, 65)), false}, // too long
	}

	for _, tc := range tests {
		result := IsValidID(tc.id)
		if result != tc.valid {
			t.Errorf("IsValidID(%q) = %v, want %v", tc.id, result, tc.valid)
		}
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		valid bool
	}{
		{"010-1234-5678", true},
		{"01012345678", true},
		{"011-234-5678", true},

		{"02-1234-5678", false}, // landline
		{"010-12-5678", false},
		{"+821012345678", false},
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidPhone(tc.phone)
		if result != tc.valid {
			t.Errorf("IsValidPhone(%q) = %v, want %v", tc.phone, result, tc.valid)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	if !IsValidEmail("owner@modu.kr") {
		t.Error("expected valid email to pass")
	}
	for _, bad := range []string{"", "no-at-sign", "a@b", "a b@c.kr"} {
		if IsValidEmail(bad) {
			t.Errorf("IsValidEmail(%q) should fail", bad)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Valid input
	errors := Validate(
		Required("name", "네일가든"),
		ValidID("shopId", "shop-1"),
		ValidEmail("email", "owner@modu.kr"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Invalid input collects every failure
	errors = Validate(
		Required("name", ""),
		ValidID("shopId", "shop/1"),
	)
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errors))
	}
}

func TestFutureTime(t *testing.T) {
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	if FutureTime(now.Add(-time.Minute), now) {
		t.Error("past datetime must fail")
	}
	if FutureTime(now, now) {
		t.Error("exact now must fail")
	}
	if !FutureTime(now.Add(time.Minute), now) {
		t.Error("future datetime must pass")
	}
}

func TestRoundToGranularity(t *testing.T) {
	in := time.Date(2026, 2, 10, 10, 17, 42, 0, time.UTC)
	got := RoundToGranularity(in, 30*time.Minute)
	want := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// zero granularity leaves the input untouched
	if !RoundToGranularity(in, 0).Equal(in) {
		t.Error("zero granularity must be a no-op")
	}
}

func TestPositiveAmount(t *testing.T) {
	if err := PositiveAmount("amount", 50000)(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := PositiveAmount("amount", 0)(); err == nil {
		t.Error("zero amount must fail")
	}
	if err := PositiveAmount("amount", -100)(); err == nil {
		t.Error("negative amount must fail")
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", "hello", 10)(); err != nil {
		t.Error("Expected no error for string under limit")
	}
	if err := MaxLength("field", "hello", 5)(); err != nil {
		t.Error("Expected no error for string at limit")
	}
	if err := MaxLength("field", "hello world", 5)(); err == nil {
		t.Error("Expected error for string over limit")
	}
}
