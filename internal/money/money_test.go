package money

import (
	"errors"
	"testing"
)

func TestToMinorUnitsRoundTrip(t *testing.T) {
	cases := []struct {
		value string
		scale int32
		want  string
	}{
		{"0", 2, "0.00"},
		{"1500", 2, "1500.00"},
		{"1500.5", 2, "1500.50"},
		{"-12.34", 2, "-12.34"},
		{"0.1", 4, "0.1000"},
		{"99999999.99", 2, "99999999.99"},
	}

	for _, tc := range cases {
		minor, err := ToMinorUnits(tc.value, tc.scale)
		if err != nil {
			t.Fatalf("ToMinorUnits(%q, %d): %v", tc.value, tc.scale, err)
		}
		if got := FromMinorUnits(minor, tc.scale); got != tc.want {
			t.Fatalf("round trip of %q at scale %d: got %q, want %q", tc.value, tc.scale, got, tc.want)
		}
	}
}

func TestToMinorUnitsRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "abc", "1.2.3", "1,50", ".5", "1.", "+1", "1e3", " 1.00"} {
		if _, err := ToMinorUnits(value, 2); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ToMinorUnits(%q) = %v, want ErrInvalidAmount", value, err)
		}
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		value string
		scale int32
		want  string
	}{
		{"1.005", 2, "1.01"},
		{"1.004", 2, "1.00"},
		{"1.0049999999999", 2, "1.00"},
		{"-1.005", 2, "-1.01"},
		{"-1.004", 2, "-1.00"},
		{"2.5", 0, "3"},
		{"0.00000000", 8, "0.00000000"},
		{"0.123456785", 8, "0.12345679"},
	}

	for _, tc := range cases {
		got, err := RoundHalfUp(tc.value, tc.scale)
		if err != nil {
			t.Fatalf("RoundHalfUp(%q, %d): %v", tc.value, tc.scale, err)
		}
		if got != tc.want {
			t.Fatalf("RoundHalfUp(%q, %d) = %q, want %q", tc.value, tc.scale, got, tc.want)
		}
	}
}

func TestRoundHalfUpIdempotent(t *testing.T) {
	for _, value := range []string{"1.005", "-17.4449", "0.125", "1234.56789"} {
		once, err := RoundHalfUp(value, 2)
		if err != nil {
			t.Fatal(err)
		}
		twice, err := RoundHalfUp(once, 2)
		if err != nil {
			t.Fatal(err)
		}
		if once != twice {
			t.Fatalf("RoundHalfUp not idempotent for %q: %q then %q", value, once, twice)
		}
	}
}

func TestMultiplyMinorByRate(t *testing.T) {
	got, err := MultiplyMinorByRate(150000, "0.01234567", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1852 {
		t.Fatalf("MultiplyMinorByRate(150000, 0.01234567, 2) = %d, want 1852", got)
	}
	if s := FromMinorUnits(got, 2); s != "18.52" {
		t.Fatalf("formatted result %q, want 18.52", s)
	}
}

func TestMultiplyMinorByRateDeterministic(t *testing.T) {
	first, err := MultiplyMinorByRate(99999999, "0.00001234", 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		again, err := MultiplyMinorByRate(99999999, "0.00001234", 2)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("iteration %d drifted: %d != %d", i, again, first)
		}
	}
}

func TestMultiplyMinorByRateNegativeAmount(t *testing.T) {
	got, err := MultiplyMinorByRate(-150000, "0.01234567", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != -1852 {
		t.Fatalf("got %d, want -1852", got)
	}
}
