// Package polymarket finds and reads the Solana 5-minute up/down markets
// through the Gamma and CLOB APIs.
package polymarket

import (
	"fmt"
	"time"
)

// Slot grid of the sol-updown-5m series. Slugs carry the unix timestamp of
// the slot start, aligned to SlotStep seconds from SlotOrigin.
const (
	SlotOrigin int64 = 1771778100
	SlotStep   int64 = 300

	slugPrefix = "sol-updown-5m"
)

// CurrentSlot returns the unix timestamp of the slot containing now, shifted
// forward by lookahead slots. Markets open one to two minutes before the
// previous slot closes, so lookahead 1 targets the next window.
func CurrentSlot(now time.Time, lookahead int) int64 {
	ts := now.Unix()
	elapsed := (ts - SlotOrigin) % SlotStep
	if elapsed < 0 {
		elapsed += SlotStep
	}
	return ts - elapsed + int64(lookahead)*SlotStep
}

// SlotSlug renders the market slug for a slot timestamp.
func SlotSlug(ts int64) string {
	return fmt.Sprintf("%s-%d", slugPrefix, ts)
}
