package domain

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestPostingValidate(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name    string
		posting Posting
		want    error
	}{
		{
			name:    "balanced transfer",
			posting: NewTransferPosting("transfer", "ref", a, b, 500),
		},
		{
			name: "balanced three legs",
			posting: Posting{Legs: []PostingLeg{
				{AccountID: a, Amount: -700},
				{AccountID: b, Amount: 500},
				{AccountID: c, Amount: 200},
			}},
		},
		{
			name:    "single leg",
			posting: Posting{Legs: []PostingLeg{{AccountID: a, Amount: 100}}},
			want:    ErrPostingTooFewLegs,
		},
		{
			name: "unbalanced",
			posting: Posting{Legs: []PostingLeg{
				{AccountID: a, Amount: -100},
				{AccountID: b, Amount: 99},
			}},
			want: ErrPostingUnbalanced,
		},
		{
			name: "zero leg",
			posting: Posting{Legs: []PostingLeg{
				{AccountID: a, Amount: 0},
				{AccountID: b, Amount: 0},
			}},
			want: ErrPostingZeroLeg,
		},
		{
			name:    "same account twice",
			posting: NewTransferPosting("transfer", "ref", a, a, 100),
			want:    ErrPostingDuplicateAccount,
		},
		{
			name: "legs that only balance by wrapping",
			posting: Posting{Legs: []PostingLeg{
				{AccountID: a, Amount: math.MaxInt64},
				{AccountID: b, Amount: 2},
				{AccountID: c, Amount: math.MaxInt64},
			}},
			want: ErrAmountOutOfRange,
		},
		{
			name: "irreversible leg",
			posting: Posting{Legs: []PostingLeg{
				{AccountID: a, Amount: math.MinInt64},
				{AccountID: b, Amount: math.MaxInt64},
				{AccountID: c, Amount: 1},
			}},
			want: ErrAmountOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.posting.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPostingReverseNegatesLegs(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	original := NewTransferPosting("card_purchase", "ct-1", from, to, 1250)

	reversed := original.Reverse("card_reversal", "ct-1")

	if reversed.Kind != "card_reversal" {
		t.Fatalf("expected reversal kind, got %q", reversed.Kind)
	}
	if err := reversed.Validate(); err != nil {
		t.Fatalf("reversal should stay balanced: %v", err)
	}
	for i, leg := range reversed.Legs {
		if leg.Amount != -original.Legs[i].Amount || leg.AccountID != original.Legs[i].AccountID {
			t.Fatalf("leg %d not negated: %+v vs %+v", i, leg, original.Legs[i])
		}
	}
}

func TestPostingLockOrderIsStable(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	forward := NewTransferPosting("transfer", "", a, b, 1).LockOrder()
	backward := NewTransferPosting("transfer", "", b, a, 1).LockOrder()

	if forward[0] != backward[0] || forward[1] != backward[1] {
		t.Fatalf("lock order depends on direction: %v vs %v", forward, backward)
	}
	if bytes.Compare(forward[0][:], forward[1][:]) > 0 {
		t.Fatalf("lock order not ascending: %v", forward)
	}
}

func TestAddAmounts(t *testing.T) {
	tests := []struct {
		name    string
		a, b    int64
		want    int64
		wantErr bool
	}{
		{name: "simple", a: 100, b: -40, want: 60},
		{name: "to max", a: math.MaxInt64 - 1, b: 1, want: math.MaxInt64},
		{name: "past max", a: math.MaxInt64, b: 1, wantErr: true},
		{name: "past min", a: math.MinInt64, b: -1, wantErr: true},
		{name: "large credit to negative", a: -10, b: math.MaxInt64, want: math.MaxInt64 - 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddAmounts(tt.a, tt.b)
			if tt.wantErr {
				if !errors.Is(err, ErrAmountOutOfRange) {
					t.Fatalf("expected ErrAmountOutOfRange, got %d (err %v)", got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %d (err %v), want %d", got, err, tt.want)
			}
		})
	}
}
