package cli

import (
	"errors"
	"reflect"
	"testing"
)

var storeKeys = []string{
	"iban",
	"bank/iban",
	"bank/pin",
	"phone",
	"phone/work",
	"address",
}

func TestExpandPattern(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected []string
		wantErr  bool
	}{
		{
			name:     "exact match",
			pattern:  "phone",
			expected: []string{"phone"},
		},
		{
			name:     "prefix group",
			pattern:  "bank/*",
			expected: []string{"bank/iban", "bank/pin"},
		},
		{
			name:     "star stops at slash",
			pattern:  "*",
			expected: []string{"iban", "phone", "address"},
		},
		{
			name:     "suffix",
			pattern:  "*/iban",
			expected: []string{"bank/iban"},
		},
		{
			name:     "question mark",
			pattern:  "i?an",
			expected: []string{"iban"},
		},
		{
			name:     "character class",
			pattern:  "[ip]*",
			expected: []string{"iban", "phone"},
		},
		{
			name:    "no match glob",
			pattern: "card/*",
			wantErr: true,
		},
		{
			name:    "no match exact",
			pattern: "email",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			pattern: "[",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPattern(tt.pattern, storeKeys)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExpandPatternNoMatchError(t *testing.T) {
	if _, err := ExpandPattern("nothing/*", storeKeys); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestExpandPatternsKeepsStoreOrder(t *testing.T) {
	got, err := ExpandPatterns([]string{"phone*", "bank/*", "iban", "phone"}, storeKeys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"iban", "bank/iban", "bank/pin", "phone"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpandPatternsPropagatesError(t *testing.T) {
	if _, err := ExpandPatterns([]string{"iban", "missing"}, storeKeys); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestMatchAny(t *testing.T) {
	tests := []struct {
		patterns []string
		key      string
		want     bool
	}{
		{[]string{"bank/*"}, "bank/iban", true},
		{[]string{"bank/*"}, "bank", false},
		{[]string{"iban", "phone"}, "phone", true},
		{[]string{"["}, "[", false},
		{nil, "iban", false},
	}
	for _, tt := range tests {
		if got := MatchAny(tt.patterns, tt.key); got != tt.want {
			t.Errorf("MatchAny(%v, %q) = %v, want %v", tt.patterns, tt.key, got, tt.want)
		}
	}
}
