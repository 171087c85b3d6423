package normalize

import "testing"

func TestExtractUnit(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"37.5 °C", "°c", true},
		{"98.6°F", "°f", true},
		{"15 psi", "psi", true},
		{"1000 ml", "ml", true},
		{"2 kg", "kg", true},
		{"30 min", "min", true},
		{"85 %", "%", true},
		{"no unit here", "", false},
	}
	for _, c := range cases {
		got, ok := ExtractUnit(c.text)
		if ok != c.ok || got != c.want {
			t.Errorf("ExtractUnit(%q) = (%q, %v), want (%q, %v)", c.text, got, ok, c.want, c.ok)
		}
	}
}

func TestDetermineValueType(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"24/04/25", "date"},
		{"24/04/25 11:07", "datetime"},
		{"11:07", "time"},
		{"11:07 AM", "time"},
		{"yes", "boolean"},
		{"FAIL", "boolean"},
		{"85.5", "numeric"},
		{"-3.2", "numeric"},
		{"acceptable", "text"},
	}
	for _, c := range cases {
		got := DetermineValueType(c.text)
		if got != c.want {
			t.Errorf("DetermineValueType(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestNormalizeSerialIdentifierCanonicalization(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"C251RH4004", "C251RH4004"},
		{"C25IRH4004", "C251RH4004"},
		{"(25IRH 4004", "C251RH4004"},
		{" c251rh4004 ", "C251RH4004"},
	}
	for _, c := range cases {
		got, orig := NormalizeSerialIdentifier(c.in)
		if got != c.want {
			t.Errorf("NormalizeSerialIdentifier(%q) canonical = %q, want %q", c.in, got, c.want)
		}
		if orig != c.in {
			t.Errorf("NormalizeSerialIdentifier(%q) original = %q, want unchanged", c.in, orig)
		}
	}
}

func TestNormalizeSerialIdentifierIdempotent(t *testing.T) {
	inputs := []string{"C251RH4004", "C25IRH4004", "(25IRH 4004", "lot-9"}
	for _, in := range inputs {
		once, _ := NormalizeSerialIdentifier(in)
		twice, _ := NormalizeSerialIdentifier(once)
		if once != twice {
			t.Errorf("normalize not idempotent: normalize(%q)=%q, normalize(normalize(%q))=%q", in, once, in, twice)
		}
	}
}

func TestNormalizeSerialIdentifierEquivalence(t *testing.T) {
	x, y := "C25IRH4004", "(25IRH 4004"
	cx, _ := NormalizeSerialIdentifier(x)
	cy, _ := NormalizeSerialIdentifier(y)
	if cx != cy {
		t.Errorf("expected %q and %q to share a canonical form, got %q and %q", x, y, cx, cy)
	}
}
