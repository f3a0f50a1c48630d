package orders

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestComputeDiscount_Percentage(t *testing.T) {
	cases := []struct {
		name    string
		pct     string
		base    string
		want    string
		wantErr bool
	}{
		{"ten percent of 19.99 rounds half up", "10", "19.99", "2.00", false},
		{"zero percent", "0", "19.99", "0.00", false},
		{"hundred percent equals base", "100", "50.00", "50.00", false},
		{"negative rejected", "-1", "50.00", "", true},
		{"over 100 rejected", "101", "50.00", "", true},
		{"rounds 33.33 percent of 10 to 2 digits", "33.33", "10.00", "3.33", false},
	}
	for _, c := range cases {
		got, err := computeDiscount(DiscountPercentage, decimal.RequireFromString(c.pct), decimal.RequireFromString(c.base))
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
		want := decimal.RequireFromString(c.want)
		if !want.Equal(got) {
			t.Errorf("%s: computeDiscount(%s%%, base=%s) = %s, want %s", c.name, c.pct, c.base, got, want)
		}
	}
}

func TestComputeDiscount_FixedAmount(t *testing.T) {
	cases := []struct {
		name           string
		amount, base   string
		want           string
	}{
		{"within base is unchanged", "5.00", "20.00", "5.00"},
		{"exceeding base clamps to base", "25.00", "20.00", "20.00"},
		{"negative clamps to zero", "-5.00", "20.00", "0.00"},
	}
	for _, c := range cases {
		got, err := computeDiscount(DiscountFixedAmount, decimal.RequireFromString(c.amount), decimal.RequireFromString(c.base))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		want := decimal.RequireFromString(c.want)
		if !want.Equal(got) {
			t.Errorf("%s: computeDiscount(%s, base=%s) = %s, want %s", c.name, c.amount, c.base, got, want)
		}
	}
}

func TestComputeDiscount_UnknownType(t *testing.T) {
	if _, err := computeDiscount(DiscountType("BOGUS"), decimal.NewFromInt(1), decimal.NewFromInt(10)); err == nil {
		t.Error("expected an error for an unrecognized discount type")
	}
}

func TestDedupeKey_StableAndDistinct(t *testing.T) {
	orderID, lineID, printerID := uuid.New(), uuid.New(), uuid.New()
	a := DedupeKey(orderID, lineID, printerID, 1)
	b := DedupeKey(orderID, lineID, printerID, 1)
	if a != b {
		t.Errorf("DedupeKey should be stable for identical inputs: %s != %s", a, b)
	}

	c := DedupeKey(orderID, lineID, printerID, 2)
	if a == c {
		t.Error("a different confirmation ordinal must change the dedupe key")
	}
}
