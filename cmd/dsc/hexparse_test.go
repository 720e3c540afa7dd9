package main

import "testing"

func TestParseUintArg(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0", 0, false},
		{"256", 256, false},
		{"0x100", 0x100, false},
		{"0X1A", 0x1a, false},
		{"0x7fffffffffffffff", 0x7fffffffffffffff, false},
		{"", 0, true},
		{"not-a-number", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		got, err := parseUintArg(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseUintArg(%q): want error, got nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUintArg(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseUintArg(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}
