package splits

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Recipient is one row of the static disbursement table.
type Recipient struct {
	Recipient string          `json:"recipient"`
	PixKey    string          `json:"pix_key"`
	Percent   decimal.Decimal `json:"percent"`
	Primary   bool            `json:"primary"`
}

// Table maps an order category to its disbursement recipients. Categories
// absent from the table settle in full to the platform account, so a missing
// category is a no-op, not an error.
type Table map[string][]Recipient

var oneHundred = decimal.NewFromInt(100)

// ParseTable decodes and validates the configured split table JSON.
func ParseTable(raw string) (Table, error) {
	if raw == "" {
		return Table{}, nil
	}

	var table Table
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("parsing split table: %w", err)
	}

	for category, recipients := range table {
		if len(recipients) == 0 {
			return nil, fmt.Errorf("split table category %q has no recipients", category)
		}

		total := decimal.Zero
		primaries := 0
		for i, r := range recipients {
			if r.Recipient == "" {
				return nil, fmt.Errorf("split table category %q: recipient %d has no name", category, i)
			}
			if r.PixKey == "" {
				return nil, fmt.Errorf("split table category %q: recipient %q has no pix key", category, r.Recipient)
			}
			if r.Percent.LessThanOrEqual(decimal.Zero) {
				return nil, fmt.Errorf("split table category %q: recipient %q percent must be positive", category, r.Recipient)
			}
			total = total.Add(r.Percent)
			if r.Primary {
				primaries++
			}
		}
		if !total.Equal(oneHundred) {
			return nil, fmt.Errorf("split table category %q: percents sum to %s, want 100", category, total)
		}
		if primaries > 1 {
			return nil, fmt.Errorf("split table category %q: more than one primary recipient", category)
		}
		// The first recipient absorbs rounding remainders when none is
		// explicitly marked primary.
		if primaries == 0 {
			recipients[0].Primary = true
		}
	}
	return table, nil
}

// Allocation is one recipient's computed share of an order amount.
type Allocation struct {
	Recipient   Recipient
	AmountCents int
}

// Allocate divides amountCents across the recipients. Each share is floored
// and the leftover cents go to the primary recipient, so the shares always
// sum exactly to the order amount.
func Allocate(amountCents int, recipients []Recipient) ([]Allocation, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amountCents)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients to allocate to")
	}

	amount := decimal.NewFromInt(int64(amountCents))
	allocations := make([]Allocation, 0, len(recipients))
	allocated := 0
	primaryIdx := 0

	for i, r := range recipients {
		share := amount.Mul(r.Percent).Div(oneHundred).Floor()
		cents := int(share.IntPart())
		allocations = append(allocations, Allocation{Recipient: r, AmountCents: cents})
		allocated += cents
		if r.Primary {
			primaryIdx = i
		}
	}

	if remainder := amountCents - allocated; remainder > 0 {
		allocations[primaryIdx].AmountCents += remainder
	}
	return allocations, nil
}
