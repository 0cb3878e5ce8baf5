package money

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{
			name:  "plain integer",
			input: "200",
			want:  20000,
		},
		{
			name:  "two decimals",
			input: "1200.50",
			want:  120050,
		},
		{
			name:  "rounds half up on third decimal",
			input: "12.346",
			want:  1235,
		},
		{
			name:  "rounds down on third decimal",
			input: "12.344",
			want:  1234,
		},
		{
			name:  "surrounding spaces",
			input: "  15.00 ",
			want:  1500,
		},
		{
			name:    "zero",
			input:   "0",
			wantErr: true,
		},
		{
			name:    "negative",
			input:   "-10.00",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "12.3a",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidAmount", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got.Cents() != tt.want {
				t.Fatalf("Parse(%q) = %d cents, want %d", tt.input, got.Cents(), tt.want)
			}
		})
	}
}

func TestAddOverflow(t *testing.T) {
	m := FromCents(math.MaxInt64)
	if _, err := m.Add(FromCents(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("Add near MaxInt64 error = %v, want ErrAmountOverflow", err)
	}

	sum, err := FromCents(100).Add(FromCents(250))
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if sum.Cents() != 350 {
		t.Fatalf("Add = %d, want 350", sum.Cents())
	}
}

func TestSubNegativeResult(t *testing.T) {
	if _, err := FromCents(100).Sub(FromCents(200)); !errors.Is(err, ErrNegativeResult) {
		t.Fatalf("Sub below zero error = %v, want ErrNegativeResult", err)
	}

	r, err := FromCents(500).Sub(FromCents(500))
	if err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	if r != Zero {
		t.Fatalf("Sub = %d, want 0", r.Cents())
	}
}

func TestMulRat(t *testing.T) {
	// 150.00 * 1/3 = 50.00
	r, err := FromCents(15000).MulRat(1, 3)
	if err != nil {
		t.Fatalf("MulRat error: %v", err)
	}
	if r.Cents() != 5000 {
		t.Fatalf("MulRat = %d, want 5000", r.Cents())
	}

	// 1.00 * 2/3 округляется до 0.67
	r, err = FromCents(100).MulRat(2, 3)
	if err != nil {
		t.Fatalf("MulRat error: %v", err)
	}
	if r.Cents() != 67 {
		t.Fatalf("MulRat = %d, want 67", r.Cents())
	}

	if _, err := FromCents(100).MulRat(1, 0); err == nil {
		t.Fatalf("expected error for zero denominator")
	}
}

func TestString(t *testing.T) {
	if got := FromCents(120050).String(); got != "1200.50" {
		t.Fatalf("String = %q, want %q", got, "1200.50")
	}
	if got := Zero.String(); got != "0.00" {
		t.Fatalf("String = %q, want %q", got, "0.00")
	}
}
