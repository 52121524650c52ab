package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/persistence/sqlite"
	"github.com/example/childcare-backoffice/internal/storeadapter"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style tests.
type SQLiteHarness struct {
	Store *sqlite.Store
	Repos *storeadapter.Repositories

	tb      testing.TB
	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "backoffice.db")
	store, err := sqlite.OpenStore(context.Background(), sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		Repos: storeadapter.New(store),
		tb:    tb,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedFamily stores the family and its children.
func (h *SQLiteHarness) SeedFamily(fixture FamilyFixture) FamilyFixture {
	h.tb.Helper()
	ctx := context.Background()

	family, children := fixture.Persistence()
	if err := h.Store.Families.CreateFamily(ctx, family); err != nil {
		h.tb.Fatalf("failed to seed family %s: %v", family.ID, err)
	}
	for _, child := range children {
		if err := h.Store.Families.CreateChild(ctx, child); err != nil {
			h.tb.Fatalf("failed to seed child %s: %v", child.ID, err)
		}
	}
	return fixture
}

// SeedService stores the catalog entry.
func (h *SQLiteHarness) SeedService(fixture ServiceFixture) ServiceFixture {
	h.tb.Helper()

	if err := h.Store.Services.UpsertService(context.Background(), fixture.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed service %s: %v", fixture.ID, err)
	}
	return fixture
}

// SeedSession stores a session directly, bypassing the lifecycle checks.
func (h *SQLiteHarness) SeedSession(fixture SessionFixture) SessionFixture {
	h.tb.Helper()

	if err := h.Store.Sessions.CreateSession(context.Background(), fixture.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed session %s: %v", fixture.ID, err)
	}
	return fixture
}

// SeedBlackout stores a blackout period.
func (h *SQLiteHarness) SeedBlackout(blackout persistence.Blackout) persistence.Blackout {
	h.tb.Helper()

	if err := h.Store.Blackouts.CreateBlackout(context.Background(), blackout); err != nil {
		h.tb.Fatalf("failed to seed blackout %s: %v", blackout.ID, err)
	}
	return blackout
}
