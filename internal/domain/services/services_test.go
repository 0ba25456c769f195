package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/repositories/postgresql"
	"github.com/quillsign/quillsign/internal/infrastructure/repositories/postgresql/testutil"
)

// Shared stubs for the external interfaces. Service tests run against
// real repositories on an in-memory database; only the network edges
// are faked.

type stubBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{blobs: map[string][]byte{}}
}

func (s *stubBlobStore) Upload(_ context.Context, name string, content []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = content
	return nil
}

func (s *stubBlobStore) Download(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.blobs[name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return content, nil
}

func (s *stubBlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	return nil
}

func (s *stubBlobStore) SignedURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return "/api/v1/blobs/" + name, nil
}

type queuedTask struct {
	Name string
	Args interface{}
}

type stubQueue struct {
	mu    sync.Mutex
	tasks []queuedTask
}

func (q *stubQueue) Enqueue(_ context.Context, name string, args interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, queuedTask{Name: name, Args: args})
	return nil
}

func (q *stubQueue) names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, len(q.tasks))
	for i, task := range q.tasks {
		names[i] = task.Name
	}
	return names
}

type stubExtractor struct {
	fields map[string]string
	err    error
}

func (s *stubExtractor) ExtractFields(context.Context, []byte) (map[string]string, error) {
	return s.fields, s.err
}

type stubLocator struct {
	geometry map[string]interface{}
	err      error
}

func (s *stubLocator) LocateFields(context.Context, []byte) (map[string]interface{}, error) {
	return s.geometry, s.err
}

type stubStamper struct {
	out    []byte
	err    error
	stamps []FieldStamp
}

func (s *stubStamper) Stamp(_ context.Context, _ []byte, stamps []FieldStamp) ([]byte, error) {
	s.stamps = stamps
	return s.out, s.err
}

type stubConcat struct{ out []byte }

func (s *stubConcat) Concat(context.Context, [][]byte) ([]byte, error) {
	return s.out, nil
}

type stubAuditRenderer struct {
	out []byte
	err error
}

func (s *stubAuditRenderer) RenderAuditLog(context.Context, interface{}) ([]byte, error) {
	return s.out, s.err
}

type stubRasterizer struct {
	pages [][]byte
	err   error
}

func (s *stubRasterizer) RasterizePages(context.Context, []byte) ([][]byte, error) {
	return s.pages, s.err
}

type stubEmailSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (s *stubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type staticTokens struct{}

func (staticTokens) Issue(uuid.UUID, *uuid.UUID) (string, error) {
	return "test-token", nil
}

// testDeps bundles the store with the raw test database so tests can
// seed rows directly.
type testDeps struct {
	store repositories.Store
	db    *testutil.TestDB
}

// newTestStore spins up a fresh in-memory database with the full
// schema and wraps it in the repository aggregate.
func newTestStore(t *testing.T) (repositories.Store, *testutil.TestDB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	t.Cleanup(func() { db.Cleanup(t) })
	return postgresql.NewRepositories(db.DB), db
}

func strptr(s string) *string { return &s }
