package dispensing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Breakdown is the pack/tablet split of a dispensed quantity.
type Breakdown struct {
	Packs      int
	Tablets    int
	TotalUnits int
	// Matched reports whether the breakdown came from the note text
	// rather than the quantity fallback.
	Matched bool
}

var (
	notePacksTablets = regexp.MustCompile(`Dispensed:\s*(\d+)\s*pack\(s\)\s*\+\s*(\d+)\s*tablets`)
	notePacksOnly    = regexp.MustCompile(`Dispensed:\s*(\d+)\s*pack\(s\)`)
	noteTabletsOnly  = regexp.MustCompile(`Dispensed:\s*(\d+)\s*tablets`)
)

// ParseBreakdownNote recovers the pack/tablet breakdown from a legacy
// note string. Older records encode the split only in the notes text;
// newer ones carry structured columns and keep the note for display.
// When no pattern matches, the quantity field is taken as
// tablet-equivalent units. unitsPerPack converts packs into units; when
// it is unknown (<= 0) and packs are present, TotalUnits falls back to
// the quantity field.
func ParseBreakdownNote(notes string, fallbackQty, unitsPerPack int) Breakdown {
	if m := notePacksTablets.FindStringSubmatch(notes); m != nil {
		packs, _ := strconv.Atoi(m[1])
		tablets, _ := strconv.Atoi(m[2])
		return Breakdown{Packs: packs, Tablets: tablets,
			TotalUnits: breakdownTotal(packs, tablets, unitsPerPack, fallbackQty), Matched: true}
	}
	if m := notePacksOnly.FindStringSubmatch(notes); m != nil {
		packs, _ := strconv.Atoi(m[1])
		return Breakdown{Packs: packs,
			TotalUnits: breakdownTotal(packs, 0, unitsPerPack, fallbackQty), Matched: true}
	}
	if m := noteTabletsOnly.FindStringSubmatch(notes); m != nil {
		tablets, _ := strconv.Atoi(m[1])
		return Breakdown{Tablets: tablets, TotalUnits: tablets, Matched: true}
	}
	return Breakdown{Tablets: fallbackQty, TotalUnits: fallbackQty}
}

func breakdownTotal(packs, tablets, unitsPerPack, fallbackQty int) int {
	if packs == 0 {
		return tablets
	}
	if unitsPerPack > 0 {
		return packs*unitsPerPack + tablets
	}
	return fallbackQty
}

// FormatBreakdownNote renders the legacy display form of a breakdown.
// Returns the empty string when there is nothing to render.
func FormatBreakdownNote(packs, tablets int) string {
	switch {
	case packs > 0 && tablets > 0:
		return fmt.Sprintf("Dispensed: %d pack(s) + %d tablets", packs, tablets)
	case packs > 0:
		return fmt.Sprintf("Dispensed: %d pack(s)", packs)
	case tablets > 0:
		return fmt.Sprintf("Dispensed: %d tablets", tablets)
	default:
		return ""
	}
}

// appendNote joins the rendered breakdown onto any free-text remark.
func appendNote(remark, rendered string) string {
	remark = strings.TrimSpace(remark)
	switch {
	case remark == "":
		return rendered
	case rendered == "":
		return remark
	default:
		return remark + "; " + rendered
	}
}
