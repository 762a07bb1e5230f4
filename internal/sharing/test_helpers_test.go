package sharing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/backend/internal/presence"
)

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustConnectionID(t *testing.T, value string) ConnectionID {
	t.Helper()
	id, err := NewConnectionID(value)
	if err != nil {
		t.Fatalf("unexpected connection id error: %v", err)
	}
	return id
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:sharing_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Grant{}, &PendingInvitation{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type fakeNoteStore struct {
	mu    sync.Mutex
	notes map[string]NoteRecord
}

func newFakeNoteStore() *fakeNoteStore {
	return &fakeNoteStore{notes: make(map[string]NoteRecord)}
}

func (f *fakeNoteStore) add(noteID, ownerID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[noteID] = NoteRecord{NoteID: noteID, OwnerID: ownerID, Title: title}
}

func (f *fakeNoteStore) OwnerAndTitle(_ context.Context, noteID string) (NoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.notes[noteID]
	if !ok {
		return NoteRecord{}, fmt.Errorf("%w: note %s", ErrNotFound, noteID)
	}
	return record, nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	byEmail map[string]UserRecord
	byID    map[string]UserRecord
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byEmail: make(map[string]UserRecord),
		byID:    make(map[string]UserRecord),
	}
}

func (f *fakeDirectory) add(userID, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := UserRecord{UserID: userID, Email: email}
	f.byEmail[email] = record
	f.byID[userID] = record
}

func (f *fakeDirectory) FindByEmail(_ context.Context, email string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.byEmail[email]
	if !ok {
		return UserRecord{}, fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	return record, nil
}

func (f *fakeDirectory) FindByID(_ context.Context, userID string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.byID[userID]
	if !ok {
		return UserRecord{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return record, nil
}

type notificationRecord struct {
	UserID string
	Type   string
	NoteID string
}

type recordingNotifier struct {
	mu       sync.Mutex
	entries  []notificationRecord
	failWith error
}

func (r *recordingNotifier) Create(_ context.Context, userID, _, _, notificationType, noteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.entries = append(r.entries, notificationRecord{UserID: userID, Type: notificationType, NoteID: noteID})
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type mailJobRecord struct {
	Name    string
	Payload map[string]any
}

type recordingMailQueue struct {
	mu       sync.Mutex
	jobs     []mailJobRecord
	failWith error
}

func (r *recordingMailQueue) Enqueue(_ context.Context, jobName string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.jobs = append(r.jobs, mailJobRecord{Name: jobName, Payload: payload})
	return nil
}

func (r *recordingMailQueue) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type testEnvironment struct {
	service  *Service
	workflow *Workflow
	access   *AccessController
	notes    *fakeNoteStore
	users    *fakeDirectory
	notifier *recordingNotifier
	mail     *recordingMailQueue
	registry *presence.Registry
	grants   *GrantStore
	pending  *PendingStore
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	db := newTestDB(t)
	grants, err := NewGrantStore(db)
	if err != nil {
		t.Fatalf("unexpected grant store error: %v", err)
	}
	pending, err := NewPendingStore(db)
	if err != nil {
		t.Fatalf("unexpected pending store error: %v", err)
	}

	noteStore := newFakeNoteStore()
	users := newFakeDirectory()
	notifier := &recordingNotifier{}
	mail := &recordingMailQueue{}

	access, err := NewAccessController(noteStore, grants)
	if err != nil {
		t.Fatalf("unexpected access controller error: %v", err)
	}
	workflow, err := NewWorkflow(WorkflowConfig{
		Access:    access,
		Notes:     noteStore,
		Grants:    grants,
		Pending:   pending,
		Directory: users,
		Notifier:  notifier,
		Mail:      mail,
		Clock:     func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("unexpected workflow error: %v", err)
	}

	registry := presence.NewRegistry(presence.RegistryConfig{
		SweepInterval: time.Hour,
	})
	t.Cleanup(registry.Close)

	service, err := NewService(ServiceConfig{
		Access:    access,
		Workflow:  workflow,
		Notes:     noteStore,
		Grants:    grants,
		Pending:   pending,
		Directory: users,
		Presence:  registry,
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	return &testEnvironment{
		service:  service,
		workflow: workflow,
		access:   access,
		notes:    noteStore,
		users:    users,
		notifier: notifier,
		mail:     mail,
		registry: registry,
		grants:   grants,
		pending:  pending,
	}
}
