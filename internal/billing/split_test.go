package billing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplitCents_SumsExactlyToOutstanding(t *testing.T) {
	cases := []struct {
		outstanding string
		n           int
	}{
		{"10.00", 3},
		{"100.01", 7},
		{"0.01", 2},
		{"19.99", 4},
		{"5.00", 1},
	}
	for _, c := range cases {
		outstanding := decimal.RequireFromString(c.outstanding)
		shares := splitCents(outstanding, c.n)
		if len(shares) != c.n {
			t.Fatalf("splitCents(%s, %d) returned %d shares, want %d", c.outstanding, c.n, len(shares), c.n)
		}

		sum := decimal.Zero
		for _, s := range shares {
			sum = sum.Add(s)
		}
		if !sum.Equal(outstanding) {
			t.Errorf("shares of %s into %d must sum back exactly: got %s", c.outstanding, c.n, sum)
		}
	}
}

func TestSplitCents_RemainderGoesToFirstSplitsOnly(t *testing.T) {
	// 10.01 split 4 ways = 1001 cents / 4 = 250 remainder 1: the first
	// split gets the extra cent, the rest get the even 250-cent share.
	shares := splitCents(decimal.RequireFromString("10.01"), 4)
	want := []string{"2.51", "2.50", "2.50", "2.50"}
	if len(shares) != len(want) {
		t.Fatalf("got %d shares, want %d", len(shares), len(want))
	}
	for i, w := range want {
		if !shares[i].Equal(decimal.RequireFromString(w)) {
			t.Errorf("shares[%d] = %s, want %s", i, shares[i], w)
		}
	}
}
