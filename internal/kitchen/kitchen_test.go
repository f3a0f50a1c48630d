package kitchen

import (
	"strings"
	"testing"
	"time"

	"github.com/tolvera-hq/saborpos/internal/eventbus"
)

func TestRenderTicket_IncludesTableItemAndNotes(t *testing.T) {
	confirmedAt := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)
	payload := eventbus.OrderConfirmed{TableNumber: "12", ConfirmedAt: confirmedAt}
	line := eventbus.ConfirmedLine{ItemName: "Francesinha", Quantity: 2, Notes: "no onions"}

	ticket := renderTicket(payload, line)

	for _, want := range []string{"TABLE 12", "2x Francesinha", "no onions", confirmedAt.Format(time.RFC3339)} {
		if !strings.Contains(ticket, want) {
			t.Errorf("rendered ticket %q does not contain %q", ticket, want)
		}
	}
}

func TestMaxRedirectHops_IsPositiveAndBounded(t *testing.T) {
	if maxRedirectHops <= 0 {
		t.Fatalf("maxRedirectHops = %d, must be positive", maxRedirectHops)
	}
	if maxRedirectHops > 16 {
		t.Errorf("maxRedirectHops = %d, unexpectedly large for a printer redirect chain", maxRedirectHops)
	}
}
