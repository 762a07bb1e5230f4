package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/backend/internal/ids"
	"github.com/inkwell-labs/inkwell/backend/internal/sharing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:directory_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestRegisterNormalizesEmail(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), "  Alice@Example.COM ", "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.UserID == "" {
		t.Fatalf("expected generated user id")
	}
}

func TestRegisterDuplicateEmailFails(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "alice@example.com", "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.Register(context.Background(), "ALICE@example.com", "Imposter")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterRejectsMalformedEmail(t *testing.T) {
	service := newTestService(t)

	_, err := service.Register(context.Background(), "not-an-email", "Nobody")
	if !errors.Is(err, sharing.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, err := service.FindByEmail(context.Background(), "BOB@Example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.UserID != account.UserID {
		t.Fatalf("expected %q, got %q", account.UserID, record.UserID)
	}
}

func TestFindByEmailUnknownFailsNotFound(t *testing.T) {
	service := newTestService(t)

	_, err := service.FindByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, sharing.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByIDRoundTrip(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), "carol@example.com", "Carol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, err := service.FindByID(context.Background(), account.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Email != "carol@example.com" || record.DisplayName != "Carol" {
		t.Fatalf("unexpected record %#v", record)
	}

	if _, err := service.FindByID(context.Background(), "missing"); !errors.Is(err, sharing.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
