package models

import (
	"testing"
	"time"
)

func TestPaymentRecordCanTransitionTo(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{PaymentStatusPending, PaymentStatusSucceeded, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusCanceled, true},
		{PaymentStatusSucceeded, PaymentStatusPending, false},
		{PaymentStatusSucceeded, PaymentStatusFailed, false},
		{PaymentStatusSucceeded, PaymentStatusRefunded, true},
		{PaymentStatusSucceeded, PaymentStatusSucceeded, false},
		{PaymentStatusFailed, PaymentStatusSucceeded, true},
		{PaymentStatusRefunded, PaymentStatusPending, false},
	}

	for _, tt := range tests {
		p := &PaymentRecord{Status: tt.from}
		if got := p.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("CanTransitionTo(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSplitIsConsistent(t *testing.T) {
	p := &PaymentRecord{TotalCents: 10000, SubsidizedCents: 9000, OutOfPocketCents: 1000}
	if !p.SplitIsConsistent() {
		t.Fatal("expected split 9000+1000=10000 to be consistent")
	}
	p.OutOfPocketCents = 999
	if p.SplitIsConsistent() {
		t.Fatal("expected split 9000+999!=10000 to be inconsistent")
	}
}

func TestPayoutAmountCents(t *testing.T) {
	tests := []struct {
		total int64
		rate  int64
		want  int64
	}{
		{10000, 90, 9000},
		{9999, 90, 8999}, // floor, never round up
		{1, 90, 0},
		{0, 90, 0},
		{-500, 90, 0},
		{10000, 0, 0},
	}

	for _, tt := range tests {
		if got := PayoutAmountCents(tt.total, tt.rate); got != tt.want {
			t.Fatalf("PayoutAmountCents(%d, %d) = %d, want %d", tt.total, tt.rate, got, tt.want)
		}
	}
}

func TestSubsidyGrantIsEligible(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		grant SubsidyGrant
		want  bool
	}{
		{"funds, no expiry", SubsidyGrant{RemainingCents: 100}, true},
		{"funds, future expiry", SubsidyGrant{RemainingCents: 100, ExpiresAt: &future}, true},
		{"funds, expired", SubsidyGrant{RemainingCents: 100, ExpiresAt: &past}, false},
		{"drained", SubsidyGrant{RemainingCents: 0}, false},
	}

	for _, tt := range tests {
		if got := tt.grant.IsEligible(now); got != tt.want {
			t.Fatalf("%s: IsEligible = %v, want %v", tt.name, got, tt.want)
		}
	}
}
