package customer

import "testing"

func TestSanitizePhone(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"trims whitespace", "  912345678  ", "912345678", false},
		{"strips percent wildcard", "912%345678", "912345678", false},
		{"strips underscore wildcard", "912_345678", "912345678", false},
		{"empty after sanitizing is rejected", "   ", "", true},
		{"empty input is rejected", "", "", true},
	}
	for _, c := range cases {
		got, err := sanitizePhone(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%s: expected an error, got nil", c.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: sanitizePhone(%q) = %q, want %q", c.name, c.in, got, c.want)
		}
	}
}

func TestReverseString(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"12345678", "87654321"},
		{"", ""},
		{"a", "a"},
	}
	for _, c := range cases {
		if got := reverseString(c.in); got != c.want {
			t.Errorf("reverseString(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
