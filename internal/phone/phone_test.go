package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "local_zero_prefix", input: "0712345678", want: "+254712345678"},
		{name: "bare_trunk_seven", input: "712345678", want: "+254712345678"},
		{name: "bare_trunk_one", input: "110345678", want: "+254110345678"},
		{name: "local_zero_one", input: "0110345678", want: "+254110345678"},
		{name: "already_canonical", input: "+254712345678", want: "+254712345678"},
		{name: "spaces_and_dashes", input: " 0712-345 678 ", want: "+254712345678"},
		{name: "bare_country_code_rejected", input: "254712345678", wantErr: true},
		{name: "wrong_trunk_digit", input: "0812345678", wantErr: true},
		{name: "too_short", input: "071234567", wantErr: true},
		{name: "too_long", input: "07123456789", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "letters_only", input: "not-a-phone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFormat) {
					t.Fatalf("Normalize(%q) error = %v, want ErrInvalidFormat", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeEquivalentFormsProduceOneKey(t *testing.T) {
	inputs := []string{"0712345678", "712345678", "+254712345678"}
	for _, input := range inputs {
		got, err := Normalize(input)
		if err != nil {
			t.Fatalf("Normalize(%q) unexpected error: %v", input, err)
		}
		if got != "+254712345678" {
			t.Fatalf("Normalize(%q) = %q, want +254712345678", input, got)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"0712345678", "110345678", "+254712345678"}
	for _, input := range inputs {
		once, err := Normalize(input)
		if err != nil {
			t.Fatalf("Normalize(%q) unexpected error: %v", input, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(Normalize(%q)) unexpected error: %v", input, err)
		}
		if once != twice {
			t.Fatalf("Normalize is not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestFormatForProvider(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "canonical_key", input: "+254712345678", want: "254712345678"},
		{name: "local_zero_prefix", input: "0712345678", want: "254712345678"},
		{name: "bare_trunk", input: "712345678", want: "254712345678"},
		{name: "already_provider_form", input: "254712345678", want: "254712345678"},
		{name: "too_short", input: "25471234567", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatForProvider(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFormat) {
					t.Fatalf("FormatForProvider(%q) error = %v, want ErrInvalidFormat", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatForProvider(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("FormatForProvider(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
