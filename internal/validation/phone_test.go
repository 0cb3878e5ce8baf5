package validation

import "testing"

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{
			name:  "local number",
			phone: "0712345678",
			valid: true,
		},
		{
			name:  "international with plus",
			phone: "+254712345678",
			valid: true,
		},
		{
			name:  "too short",
			phone: "12345",
			valid: false,
		},
		{
			name:  "too long",
			phone: "1234567890123456",
			valid: false,
		},
		{
			name:  "contains letters",
			phone: "07123a5678",
			valid: false,
		},
		{
			name:  "plus in the middle",
			phone: "0712+45678",
			valid: false,
		},
		{
			name:  "empty string",
			phone: "",
			valid: false,
		},
		{
			name:  "lone plus",
			phone: "+",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidPhone(tt.phone)
			if got != tt.valid {
				t.Fatalf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.valid)
			}
		})
	}
}
