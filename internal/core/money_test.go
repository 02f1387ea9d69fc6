package core

import (
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
		err  bool
	}{
		{name: "whole", in: "45", want: 4500},
		{name: "one decimal", in: "45.5", want: 4550},
		{name: "dot", in: "3.99", want: 399},
		{name: "comma", in: "3,99", want: 399},
		{name: "smallest", in: "0.01", want: 1},
		{name: "rounds half up", in: "2.675", want: 268},
		{name: "rounds down", in: "2.674", want: 267},
		{name: "surrounding space", in: "  18.00 ", want: 1800},
		{name: "leading dot", in: ".75", want: 75},
		{name: "negative", in: "-3", err: true},
		{name: "explicit plus", in: "+3", err: true},
		{name: "zero", in: "0.00", err: true},
		{name: "rounds to zero", in: "0.004", err: true},
		{name: "exponent", in: "1e3", err: true},
		{name: "two separators", in: "1.000,50", err: true},
		{name: "letters", in: "twelve", err: true},
		{name: "empty", in: "", err: true},
		{name: "overflow", in: "92233720368547758.08", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.in)
			if tt.err {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseDecimalToCents(%q) error = %v, want ErrInvalidAmount", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimalToCents(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{7, "0.07"},
		{-7, "-0.07"},
		{2050, "20.50"},
		{-987654, "-9876.54"},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a, b := Money{Cents: 1500}, Money{Cents: 250}
	if got := a.Add(b); got.Cents != 1750 {
		t.Errorf("Add = %d, want 1750", got.Cents)
	}
	if got := b.Sub(a); got.Cents != -1250 {
		t.Errorf("Sub = %d, want -1250", got.Cents)
	}
	if got := a.Neg(); got.Cents != -1500 {
		t.Errorf("Neg = %d, want -1500", got.Cents)
	}
	if err := (Money{Cents: 0}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Validate(0) = %v, want ErrInvalidAmount", err)
	}
	if err := b.Validate(); err != nil {
		t.Errorf("Validate(250) = %v", err)
	}
}
