package importer

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		dayFirst bool
		want     time.Time
		wantOK   bool
	}{
		{name: "iso date", input: "2024-01-15", want: day(2024, 1, 15), wantOK: true},
		{name: "iso slashes", input: "2024/01/15", want: day(2024, 1, 15), wantOK: true},
		{name: "rfc3339", input: "2024-01-15T10:30:00Z", want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), wantOK: true},
		{name: "rfc3339 with offset is converted to utc", input: "2024-01-15T10:30:00+02:00", want: time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC), wantOK: true},
		{name: "datetime with space", input: "2024-01-15 10:30:00", want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), wantOK: true},
		{name: "compact", input: "20240115", want: day(2024, 1, 15), wantOK: true},
		{name: "month name", input: "Jan 15, 2024", want: day(2024, 1, 15), wantOK: true},
		{name: "day month name", input: "15 January 2024", want: day(2024, 1, 15), wantOK: true},

		{name: "ambiguous reads month first", input: "03/04/2024", want: day(2024, 3, 4), wantOK: true},
		{name: "ambiguous reads day first when asked", input: "03/04/2024", dayFirst: true, want: day(2024, 4, 3), wantOK: true},
		{name: "month first falls back to day first", input: "25/12/2024", want: day(2024, 12, 25), wantOK: true},
		{name: "day first falls back to month first", input: "12/25/2024", dayFirst: true, want: day(2024, 12, 25), wantOK: true},
		{name: "dashes", input: "1-15-2024", want: day(2024, 1, 15), wantOK: true},
		{name: "dots day first", input: "15.01.2024", dayFirst: true, want: day(2024, 1, 15), wantOK: true},

		{name: "two digit year", input: "1/15/24", want: day(2024, 1, 15), wantOK: true},

		{name: "excel serial", input: "45306", want: day(2024, 1, 15), wantOK: true},
		{name: "excel formula wrapper", input: `="2024-01-15"`, want: day(2024, 1, 15), wantOK: true},
		{name: "padded", input: "  2024-01-15  ", want: day(2024, 1, 15), wantOK: true},

		{name: "empty", input: "", wantOK: false},
		{name: "text", input: "not a date", wantOK: false},
		{name: "zero is not a serial", input: "0", wantOK: false},
		{name: "impossible date", input: "2024-02-30", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, tt.dayFirst)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYearPivot(t *testing.T) {
	farFuture := (time.Now().Year() + TwoDigitYearPivot + 5) % 100

	got, ok := ParseDate(time.Date(2000+farFuture, 6, 1, 0, 0, 0, 0, time.UTC).Format("1/2/06"), false)
	if !ok {
		t.Fatal("expected two digit year to parse")
	}
	if got.Year() >= 2000+farFuture {
		t.Errorf("year %d was not moved to the previous century", got.Year())
	}
}

func TestFormatTimestamp_RoundTrip(t *testing.T) {
	in := time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("ICT", 7*3600))

	s := FormatTimestamp(in)
	if s != "2024-01-15T03:30:00Z" {
		t.Fatalf("FormatTimestamp = %q", s)
	}

	out, ok := ParseTimestamp(s)
	if !ok || !out.Equal(in) {
		t.Errorf("ParseTimestamp(%q) = %v, %v", s, out, ok)
	}
}

// ----------------------------------------------------------------------------
// Number Tests
// ----------------------------------------------------------------------------

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "123", want: "123"},
		{input: "123.45", want: "123.45"},
		{input: ".99", want: "0.99"},
		{input: "99.", want: "99"},
		{input: "-456", want: "-456"},
		{input: "$1,234.56", want: "1234.56"},
		{input: "€99", want: "99"},
		{input: "150.000₫", want: "150"},
		{input: "(123.45)", want: "-123.45"},
		{input: "1 000", want: "1000"},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
		{input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimal(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDecimal(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestParseInteger(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "12", want: 12},
		{input: "12.0", want: 12},
		{input: "1,500", want: 1500},
		{input: "-3", want: -3},
		{input: "12.5", wantErr: true},
		{input: "ten", wantErr: true},
		{input: "9223372036854775807", want: 9223372036854775807},
		{input: "-9223372036854775808", want: -9223372036854775808},
		{input: "9223372036854775808", wantErr: true},
		{input: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInteger(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseInteger(%q) = %d, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInteger(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseInteger(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Cell and Label Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{`="00123"`, "00123"},
		{"=SUM(A1)", "SUM(A1)"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeKey_ComposesUnicode(t *testing.T) {
	decomposed := "Cafe\u0301"
	composed := "Caf\u00e9"

	if got := NormalizeKey("  " + decomposed + " "); got != composed {
		t.Errorf("NormalizeKey = %q, want %q", got, composed)
	}
	if got := NormalizeLabel(" Last Contact "); got != "last contact" {
		t.Errorf("NormalizeLabel = %q", got)
	}
}

func TestSanitizeUTF8(t *testing.T) {
	in := []byte("ok\xffok")
	got := string(sanitizeUTF8(in))
	if got != "ok\ufffdok" {
		t.Errorf("sanitizeUTF8 = %q", got)
	}

	valid := []byte("Nguyễn")
	if string(sanitizeUTF8(valid)) != "Nguyễn" {
		t.Error("valid input was modified")
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
