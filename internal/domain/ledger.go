package domain

import (
	"bytes"
	"errors"
	"math"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrPostingTooFewLegs       = errors.New("posting needs at least two legs")
	ErrPostingZeroLeg          = errors.New("posting leg amount must be non-zero")
	ErrPostingUnbalanced       = errors.New("posting legs must sum to zero")
	ErrPostingDuplicateAccount = errors.New("posting references an account more than once")
	ErrAmountOutOfRange        = errors.New("amount out of range")
)

// AddAmounts returns a+b, or ErrAmountOutOfRange if the sum does not fit in int64.
func AddAmounts(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrAmountOutOfRange
	}
	return sum, nil
}

// PostingLeg moves Amount into (positive) or out of (negative) one account.
type PostingLeg struct {
	AccountID uuid.UUID
	Amount    int64
}

// Posting is a balanced set of legs applied atomically to the ledger.
type Posting struct {
	Kind      string
	Reference string
	Legs      []PostingLeg
}

// NewTransferPosting debits from and credits to by amount.
func NewTransferPosting(kind, reference string, from, to uuid.UUID, amount int64) Posting {
	return Posting{
		Kind:      kind,
		Reference: reference,
		Legs: []PostingLeg{
			{AccountID: from, Amount: -amount},
			{AccountID: to, Amount: amount},
		},
	}
}

// Validate enforces conservation: every leg moves money and the legs net to zero.
func (p Posting) Validate() error {
	if len(p.Legs) < 2 {
		return ErrPostingTooFewLegs
	}
	seen := make(map[uuid.UUID]struct{}, len(p.Legs))
	var sum int64
	for _, leg := range p.Legs {
		if leg.Amount == 0 {
			return ErrPostingZeroLeg
		}
		// MinInt64 has no positive counterpart, so the posting could not be reversed.
		if leg.Amount == math.MinInt64 {
			return ErrAmountOutOfRange
		}
		if _, dup := seen[leg.AccountID]; dup {
			return ErrPostingDuplicateAccount
		}
		seen[leg.AccountID] = struct{}{}
		next, err := AddAmounts(sum, leg.Amount)
		if err != nil {
			return err
		}
		sum = next
	}
	if sum != 0 {
		return ErrPostingUnbalanced
	}
	return nil
}

// Reverse returns the compensating posting.
func (p Posting) Reverse(kind, reference string) Posting {
	legs := make([]PostingLeg, len(p.Legs))
	for i, leg := range p.Legs {
		legs[i] = PostingLeg{AccountID: leg.AccountID, Amount: -leg.Amount}
	}
	return Posting{Kind: kind, Reference: reference, Legs: legs}
}

// LockOrder returns the account ids sorted the way Postgres orders uuids, so
// every posting acquires row locks in the same order.
func (p Posting) LockOrder() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Legs))
	for _, leg := range p.Legs {
		ids = append(ids, leg.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
