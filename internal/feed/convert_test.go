package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // yyyy-mm-dd, empty means unparseable
	}{
		{"ISO", "2024-01-10", "2024-01-10"},
		{"ISO slash", "2024/01/10", "2024-01-10"},
		{"US slash", "1/10/2024", "2024-01-10"},
		{"EU dots", "10.01.2024", "2024-10-01"},
		{"compact", "20240110", "2024-01-10"},
		{"month name", "Jan 10, 2024", "2024-01-10"},
		{"day month year", "10 Jan 2024", "2024-01-10"},
		{"two digit year", "1/10/24", "2024-01-10"},
		{"two digit year last century", "1/10/99", "1999-01-10"},
		{"whitespace", "  2024-01-10  ", "2024-01-10"},
		{"empty", "", ""},
		{"garbage", "not a date", ""},
		{"impossible day", "2024-02-31", ""},
		{"number only", "45", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if tt.want == "" {
				if ok {
					t.Fatalf("ParseDate(%q) = %v, want failure", tt.input, got)
				}
				return
			}
			if !ok {
				t.Fatalf("ParseDate(%q) failed, want %s", tt.input, tt.want)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
			if got.Location() != time.UTC || got.Hour() != 0 {
				t.Errorf("ParseDate(%q) not normalized to midnight UTC: %v", tt.input, got)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // decimal string, empty means unparseable
	}{
		{"plain integer", "45", "45"},
		{"decimal", "45.50", "45.50"},
		{"thousands separator", "1,234.56", "1234.56"},
		{"dollar sign", "$120.00", "120.00"},
		{"kenyan shilling prefix", "KSh 85.50", "85.50"},
		{"accounting negative", "(12.50)", "-12.50"},
		{"leading plus", "+7.25", "7.25"},
		{"scientific", "1.2e3", "1200"},
		{"whitespace", "  99  ", "99"},
		{"empty", "", ""},
		{"letters", "abc", ""},
		{"mixed", "12abc", ""},
		{"double decimal point", "1.2.3", ""},
		{"lone symbol", "$", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if tt.want == "" {
				if ok {
					t.Fatalf("ParsePrice(%q) = %s, want failure", tt.input, got)
				}
				return
			}
			if !ok {
				t.Fatalf("ParsePrice(%q) failed, want %s", tt.input, tt.want)
			}
			if want := decimal.RequireFromString(tt.want); !got.Equal(want) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Maize", "Maize"},
		{"whitespace", "  Maize  ", "Maize"},
		{"excel formula", `="Nairobi"`, "Nairobi"},
		{"equals prefix", "=45.50", "45.50"},
		{"quoted", `"Central Kenya"`, "Central Kenya"},
		{"single quoted", "'Mombasa'", "Mombasa"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
