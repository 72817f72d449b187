package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want ErrorCode
	}{
		{nil, ""},
		{fmt.Errorf("%w: status=401", ErrAuthRejected), CodeAuthRejected},
		{fmt.Errorf("%w: status=429", ErrRateLimited), CodeRateLimited},
		{fmt.Errorf("%w: steps=5", ErrStepLimitExceeded), CodeStepLimitExceeded},
		{fmt.Errorf("%w: %w", ErrTurnTimeout, context.DeadlineExceeded), CodeTurnTimeout},
		{context.Canceled, CodeCanceled},
		{context.DeadlineExceeded, CodeTurnTimeout},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestPublicMessageHidesUpstreamBody(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: status=401 body={\"error\":\"sk-live-123 invalid\"}", ErrAuthRejected)
	msg := PublicMessage(err)
	if strings.Contains(msg, "sk-live-123") {
		t.Fatalf("public message leaked upstream body: %q", msg)
	}
	if msg == "" {
		t.Fatal("expected non-empty public message")
	}
}

func TestDiscountLabel(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		20:     "20% off",
		12.5:   "12.5% off",
		33.333: "33.33% off",
		0:      "",
	}
	for in, want := range cases {
		if got := (Offer{DiscountPercent: in}).DiscountLabel(); got != want {
			t.Fatalf("DiscountLabel(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestProductPrice(t *testing.T) {
	t.Parallel()

	if got := (Product{PriceCents: 1250, Currency: "usd"}).Price(); got != "12.50 USD" {
		t.Fatalf("Price() = %q", got)
	}
	if got := (Product{PriceCents: 900}).Price(); got != "9.00 USD" {
		t.Fatalf("Price() = %q", got)
	}
}
