package firestore

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
)

func TestResolveTxConfig(t *testing.T) {
	cfg := resolveTxConfig(nil)
	if cfg.attempts != defaultTxAttempts || cfg.timeout != defaultTxTimeout {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	cfg = resolveTxConfig([]TxOption{nil, WithTxAttempts(2), WithTxTimeout(time.Second), WithTxAttempts(0), WithTxTimeout(-time.Second)})
	if cfg.attempts != 2 || cfg.timeout != time.Second {
		t.Fatalf("expected overrides to apply and non-positive values to be ignored, got %+v", cfg)
	}
}

func TestRunTransactionRejectsMissingInputs(t *testing.T) {
	noop := func(context.Context, *firestore.Transaction) error { return nil }
	if err := RunTransaction(context.Background(), nil, noop); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := RunTransaction(context.Background(), &firestore.Client{}, nil); err == nil {
		t.Fatalf("expected error for nil transaction function")
	}
}
