// Package calculator implements the split arithmetic for group orders.
//
// All amounts are integer cents. The invariant every function here preserves
// is exactness: the computed shares always sum to the input total, with no
// rounding loss in either direction.
package calculator

import "fmt"

// Share is one participant's computed portion of an order total.
type Share struct {
	UserID      string
	AmountCents int64
}

// EqualSplit divides totalCents evenly across participantIDs. When the total
// is not divisible, the remainder cents are assigned to creatorID so that no
// fractional cent is lost or invented.
//
// Example: 3100 cents across three participants yields 1034 for the creator
// and 1033 for each of the others.
func EqualSplit(totalCents int64, creatorID string, participantIDs []string) ([]Share, error) {
	if totalCents <= 0 {
		return nil, fmt.Errorf("total must be positive, got %d", totalCents)
	}
	if len(participantIDs) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}

	n := int64(len(participantIDs))
	base := totalCents / n
	remainder := totalCents % n

	creatorPresent := false
	shares := make([]Share, len(participantIDs))
	for i, id := range participantIDs {
		shares[i] = Share{UserID: id, AmountCents: base}
		if id == creatorID {
			shares[i].AmountCents += remainder
			creatorPresent = true
		}
	}

	// Orders placed on behalf of others: the creator may not be eating. The
	// remainder then goes to the first participant so the sum stays exact.
	if !creatorPresent && remainder > 0 {
		shares[0].AmountCents += remainder
	}

	return shares, nil
}

// SumShares returns the total of all share amounts. Callers use it to assert
// the exactness invariant.
func SumShares(shares []Share) int64 {
	var sum int64
	for _, s := range shares {
		sum += s.AmountCents
	}
	return sum
}
