package vaccines

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/mobile-luiz/VacinACS/internal/registry"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:vacinas_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Dose{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := NewStore(StoreConfig{
		Database: db,
		Clock:    func() time.Time { return time.UnixMilli(1760000000000).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, db
}

func mustSaveDose(t *testing.T, store *Store, dose Dose) {
	t.Helper()
	if err := store.SaveOrUpdate(context.Background(), dose); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
}

func TestSaveOrUpdateReplacesOnCompositeKey(t *testing.T) {
	store, db := newTestStore(t)
	cns := "700000000000001"
	key := DoseKey("Penta", "1ª Dose")

	mustSaveDose(t, store, Dose{
		CNS:          cns,
		Key:          key,
		VaccineName:  "Penta",
		DoseLabel:    "1ª Dose",
		Status:       DoseStatusScheduled,
		ScheduledFor: "10/06/2025",
	})
	mustSaveDose(t, store, Dose{
		CNS:         cns,
		Key:         key,
		VaccineName: "Penta",
		DoseLabel:   "1ª Dose",
		Status:      DoseStatusApplied,
		AppliedAt:   "10/06/2025",
		Lot:         "L-42",
	})

	var count int64
	if err := db.Model(&Dose{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row after conflicting save, got %d", count)
	}

	stored, err := store.Get(context.Background(), cns, key)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.Status != DoseStatusApplied || stored.Lot != "L-42" {
		t.Fatalf("second write did not win: %+v", stored)
	}
	if stored.ScheduledFor != "" {
		t.Fatalf("stale booking survived the replace: %q", stored.ScheduledFor)
	}
}

func TestSaveOrUpdateStampsUpdateTime(t *testing.T) {
	store, _ := newTestStore(t)
	cns := "700000000000002"
	key := DoseKey("BCG", "Dose Única")

	mustSaveDose(t, store, Dose{CNS: cns, Key: key, VaccineName: "BCG", DoseLabel: "Dose Única"})

	stored, err := store.Get(context.Background(), cns, key)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.UpdatedAtMillis != 1760000000000 {
		t.Fatalf("expected clock stamp, got %d", stored.UpdatedAtMillis)
	}
}

func TestGetMissingDoseReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "700000000000003", "PENTA_1_DOSE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUnsyncedReturnsOldestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	cns := "700000000000004"

	mustSaveDose(t, store, Dose{CNS: cns, Key: "B", VaccineName: "VIP", DoseLabel: "2ª Dose", UpdatedAtMillis: 300})
	mustSaveDose(t, store, Dose{CNS: cns, Key: "A", VaccineName: "VIP", DoseLabel: "1ª Dose", UpdatedAtMillis: 100})
	mustSaveDose(t, store, Dose{CNS: cns, Key: "C", VaccineName: "VIP", DoseLabel: "3ª Dose", UpdatedAtMillis: 200, Synchronized: true})

	unsynced, err := store.ListUnsynced(context.Background())
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(unsynced) != 2 {
		t.Fatalf("expected 2 unsynced doses, got %d", len(unsynced))
	}
	if unsynced[0].Key != "A" || unsynced[1].Key != "B" {
		t.Fatalf("expected oldest-first order, got %s then %s", unsynced[0].Key, unsynced[1].Key)
	}
}

func TestMarkSyncedStampsPushedTimestamp(t *testing.T) {
	store, _ := newTestStore(t)
	cns := "700000000000005"
	key := DoseKey("HPV", "Dose 1")

	mustSaveDose(t, store, Dose{CNS: cns, Key: key, VaccineName: "HPV", DoseLabel: "Dose 1", UpdatedAtMillis: 50})

	if err := store.MarkSynced(context.Background(), cns, key, 999); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}
	stored, err := store.Get(context.Background(), cns, key)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !stored.Synchronized || stored.UpdatedAtMillis != 999 {
		t.Fatalf("sync mark not applied: %+v", stored)
	}

	if err := store.MarkSynced(context.Background(), cns, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestDeleteByCNSRemovesWholeCard(t *testing.T) {
	store, _ := newTestStore(t)
	keep := "700000000000006"
	drop := "700000000000007"

	mustSaveDose(t, store, Dose{CNS: drop, Key: "A", VaccineName: "Penta", DoseLabel: "1ª Dose"})
	mustSaveDose(t, store, Dose{CNS: drop, Key: "B", VaccineName: "Penta", DoseLabel: "2ª Dose"})
	mustSaveDose(t, store, Dose{CNS: keep, Key: "A", VaccineName: "Penta", DoseLabel: "1ª Dose"})

	removed, err := store.DeleteByCNS(context.Background(), drop)
	if err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows removed, got %d", removed)
	}

	left, err := store.ListByCNS(context.Background(), keep)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("neighbouring card affected, %d rows left", len(left))
	}
}

func TestListByAgentJoinsOwningIndividual(t *testing.T) {
	store, db := newTestStore(t)
	if err := db.AutoMigrate(&registry.Individual{}); err != nil {
		t.Fatalf("failed to migrate individuals: %v", err)
	}

	mine := "700000000000010"
	other := "700000000000011"
	if err := db.Create(&registry.Individual{CNS: mine, Name: "Maria da Silva", RegisteredByUID: "acs-01"}).Error; err != nil {
		t.Fatalf("failed to seed individual: %v", err)
	}
	if err := db.Create(&registry.Individual{CNS: other, Name: "José Ramos", RegisteredByUID: "acs-02"}).Error; err != nil {
		t.Fatalf("failed to seed individual: %v", err)
	}

	mustSaveDose(t, store, Dose{CNS: mine, Key: "A", VaccineName: "Penta", DoseLabel: "1ª Dose"})
	mustSaveDose(t, store, Dose{CNS: mine, Key: "B", VaccineName: "Penta", DoseLabel: "2ª Dose"})
	mustSaveDose(t, store, Dose{CNS: other, Key: "A", VaccineName: "Penta", DoseLabel: "1ª Dose"})

	doses, err := store.ListByAgent(context.Background(), "acs-01")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(doses) != 2 {
		t.Fatalf("expected 2 doses for the agent, got %d", len(doses))
	}
	for _, dose := range doses {
		if dose.CNS != mine {
			t.Fatalf("foreign dose leaked into agent listing: %+v", dose)
		}
	}
}

func TestDeleteSingleDose(t *testing.T) {
	store, _ := newTestStore(t)
	cns := "700000000000008"
	key := DoseKey("VIP", "1ª Dose")

	mustSaveDose(t, store, Dose{CNS: cns, Key: key, VaccineName: "VIP", DoseLabel: "1ª Dose"})
	if err := store.Delete(context.Background(), cns, key); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := store.Delete(context.Background(), cns, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
