package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/md-rashed-zaman/barberbook/libs/db"
)

func TestPostgresContract(t *testing.T) {
	url := os.Getenv("BARBERBOOK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BARBERBOOK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)

	ledger := NewPostgres(pool)
	if err := ledger.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	runContract(t, func(t *testing.T) Ledger {
		if _, err := pool.Exec(ctx, `TRUNCATE appointments`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return ledger
	})
}

func TestClassifyKeepsSentinels(t *testing.T) {
	for _, err := range []error{ErrConflict, ErrNotFound, ErrAlreadyTerminal, ErrInvalid} {
		if got := classify("op", err); got != err {
			t.Fatalf("classify(%v) = %v", err, got)
		}
	}
}
