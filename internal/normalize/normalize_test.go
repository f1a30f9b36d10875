package normalize

import "testing"

func TestCode(t *testing.T) {
	tests := []struct{ in, want string }{
		{" 99213 ", "99213"},
		{"j20.9", "J209"},
		{"E11.9", "E119"},
		{"NO_CODE_abc", "NO_CODE_abc"},
	}
	for _, tt := range tests {
		if got := Code(tt.in); got != tt.want {
			t.Errorf("Code(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"$1,234.50", 123450, true},
		{"150", 15000, true},
		{"0.005", 1, true},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMoney(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMoney(%q) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAnyToCents(t *testing.T) {
	if c, ok := AnyToCents(12.5); !ok || c != 1250 {
		t.Errorf("float: got %d,%v", c, ok)
	}
	if c, ok := AnyToCents("$3"); !ok || c != 300 {
		t.Errorf("string: got %d,%v", c, ok)
	}
	if _, ok := AnyToCents(nil); ok {
		t.Error("nil should not convert")
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   any
		want int32
	}{
		{"20%", 2000},
		{"20", 2000},
		{0.2, 2000},
		{"12.5%", 1250},
		{nil, 0},
	}
	for _, tt := range tests {
		got, err := ParseRate(tt.in)
		if err != nil {
			t.Fatalf("ParseRate(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseRate(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if _, err := ParseRate("150%"); err == nil {
		t.Error("expected out of range error")
	}
}

func TestApplyBasisPoints(t *testing.T) {
	if got := ApplyBasisPoints(10000, 8000); got != 8000 {
		t.Errorf("got %d, want 8000", got)
	}
	// 333 * 0.8 = 266.4 rounds to 266
	if got := ApplyBasisPoints(333, 8000); got != 266 {
		t.Errorf("got %d, want 266", got)
	}
	// 5 * 0.5 = 2.5 rounds half up to 3
	if got := ApplyBasisPoints(5, 5000); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

func TestDescription(t *testing.T) {
	a := Description("Office Visit, Est. Patient")
	b := Description("office  visit est patient")
	if a != b {
		t.Errorf("%q != %q", a, b)
	}
}

func TestStableID(t *testing.T) {
	a := StableID("pat", "Jane Doe", "10001")
	b := StableID("pat", " jane  doe", "10001")
	if a != b {
		t.Errorf("StableID not normalized: %s vs %s", a, b)
	}
	if StableID("pat", "John", "10001") == a {
		t.Error("different inputs produced the same id")
	}
}

func TestZipFromAddress(t *testing.T) {
	if got := ZipFromAddress("12 Main St, Springfield, IL 62704-1234"); got != "62704" {
		t.Errorf("got %q", got)
	}
	if got := ZipFromAddress("no zip here"); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{123450, "$1,234.50"},
		{100000000, "$1,000,000.00"},
		{-2500, "-$25.00"},
	}
	for _, tt := range tests {
		if got := FormatCents(tt.in); got != tt.want {
			t.Errorf("FormatCents(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatBasisPoints(2000); got != "20%" {
		t.Errorf("FormatBasisPoints(2000) = %q", got)
	}
	if got := FormatBasisPoints(1250); got != "12.5%" {
		t.Errorf("FormatBasisPoints(1250) = %q", got)
	}
}
