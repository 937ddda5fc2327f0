package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"sharefile/internal/common"
	"sharefile/internal/dbx"
	"sharefile/internal/logging"
	"sharefile/internal/server/models"
	"sharefile/internal/server/objectstore"
	"sharefile/internal/server/queue"
	chunksrepo "sharefile/internal/server/repositories/chunks"
	filesrepo "sharefile/internal/server/repositories/files"
	linksrepo "sharefile/internal/server/repositories/links"
	"sharefile/internal/server/repositories/repomanager"
	sessionsrepo "sharefile/internal/server/repositories/sessions"
	usersrepo "sharefile/internal/server/repositories/users"
)

// In-memory fakes implementing the repository interfaces. They are
// mutex-guarded so concurrency tests exercise the same atomicity the
// Postgres implementations provide.

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.DiscardHandler))
}

// --- users ---

type fakeUsersRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	getErr error
	incErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{users: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	cp.CreatedAt = time.Now()
	f.users[u.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) SetAdmin(ctx context.Context, id string, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsAdmin = true
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUsersRepo) IncrementUsedBytes(ctx context.Context, id string, delta int64) (int64, error) {
	if f.incErr != nil {
		return 0, f.incErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	u.UsedBytes += delta
	if u.UsedBytes < 0 {
		u.UsedBytes = 0
	}
	return u.UsedBytes, nil
}

// --- sessions ---

type fakeSessionsRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession

	getErr    error
	updateErr error
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{sessions: map[string]*models.UploadSession{}}
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.UploadSession) (*models.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.sessions[s.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSessionsRepo) GetByID(ctx context.Context, id string) (*models.UploadSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionsRepo) UpdateStatus(ctx context.Context, id string, from []models.UploadStatus, to models.UploadStatus) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return common.ErrSessionState
	}
	for _, st := range from {
		if s.Status == st {
			s.Status = to
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return common.ErrSessionState
}

func (f *fakeSessionsRepo) MarkFinalized(ctx context.Context, id string, to models.UploadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return common.ErrSessionState
	}
	if s.Status != models.UploadStatusUploading && s.Status != models.UploadStatusFinalizing {
		return common.ErrSessionState
	}
	now := time.Now()
	s.Status = to
	s.FinalizedAt = &now
	s.UpdatedAt = now
	return nil
}

func (f *fakeSessionsRepo) ListExpired(ctx context.Context, status models.UploadStatus, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	now := time.Now()
	for id, s := range f.sessions {
		if s.Status == status && s.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- chunks ---

type fakeChunksRepo struct {
	mu     sync.Mutex
	chunks map[string]*models.UploadChunk

	insertErr error
	listErr   error
}

func newFakeChunksRepo() *fakeChunksRepo {
	return &fakeChunksRepo{chunks: map[string]*models.UploadChunk{}}
}

func chunkKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/%d", sessionID, index)
}

func (f *fakeChunksRepo) Insert(ctx context.Context, c *models.UploadChunk) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := chunkKey(c.SessionID, c.Index)
	if _, ok := f.chunks[key]; ok {
		return false, nil
	}
	cp := *c
	cp.ReceivedAt = time.Now()
	f.chunks[key] = &cp
	return true, nil
}

func (f *fakeChunksRepo) Get(ctx context.Context, sessionID string, index int) (*models.UploadChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chunks[chunkKey(sessionID, index)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeChunksRepo) ListIndexes(ctx context.Context, sessionID string) ([]int, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	indexes := []int{}
	for _, c := range f.chunks {
		if c.SessionID == sessionID {
			indexes = append(indexes, c.Index)
		}
	}
	sort.Ints(indexes)
	return indexes, nil
}

// --- files ---

type fakeFilesRepo struct {
	mu    sync.Mutex
	files map[string]*models.StoredFile

	getErr     error
	promoteErr error
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{files: map[string]*models.StoredFile{}}
}

func (f *fakeFilesRepo) Create(ctx context.Context, file *models.StoredFile) (*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *file
	cp.CreatedAt = time.Now()
	f.files[file.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, id string) (*models.StoredFile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFilesRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.StoredFile{}
	for _, file := range f.files {
		if file.OwnerID == ownerID {
			cp := *file
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFilesRepo) List(ctx context.Context) ([]*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.StoredFile{}
	for _, file := range f.files {
		cp := *file
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeFilesRepo) ListPending(ctx context.Context, limit int) ([]*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.StoredFile{}
	for _, file := range f.files {
		if file.Status == models.FileStatusPending && file.SessionID != nil {
			cp := *file
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeFilesRepo) UpdateStoragePath(ctx context.Context, id, storagePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	file.StoragePath = storagePath
	return nil
}

func (f *fakeFilesRepo) PromoteReady(ctx context.Context, id string, mergedSize int64) (bool, error) {
	if f.promoteErr != nil {
		return false, f.promoteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return false, nil
	}
	if file.Status != models.FileStatusPending {
		return false, nil
	}
	now := time.Now()
	file.Status = models.FileStatusReady
	file.Size = mergedSize
	file.CompletedAt = &now
	return true, nil
}

func (f *fakeFilesRepo) MarkError(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	file.Status = models.FileStatusError
	return nil
}

func (f *fakeFilesRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.files, id)
	return nil
}

// --- links ---

type fakeLinksRepo struct {
	mu    sync.Mutex
	links map[string]*models.DownloadLink

	createErr error
	// existsOnce makes the next ShortCodeExists call report a collision.
	existsOnce bool
}

func newFakeLinksRepo() *fakeLinksRepo {
	return &fakeLinksRepo{links: map[string]*models.DownloadLink{}}
}

func (f *fakeLinksRepo) Create(ctx context.Context, l *models.DownloadLink) (*models.DownloadLink, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	cp.CreatedAt = time.Now()
	f.links[l.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeLinksRepo) GetByID(ctx context.Context, id string) (*models.DownloadLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLinksRepo) GetByToken(ctx context.Context, token string) (*models.DownloadLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeLinksRepo) GetByShortCode(ctx context.Context, shortCode string) (*models.DownloadLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.ShortCode != nil && *l.ShortCode == shortCode {
			cp := *l
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeLinksRepo) ShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	if f.existsOnce {
		f.existsOnce = false
		return true, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.ShortCode != nil && *l.ShortCode == shortCode {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLinksRepo) ListByFile(ctx context.Context, fileID string) ([]*models.DownloadLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.DownloadLink{}
	for _, l := range f.links {
		if l.FileID == fileID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLinksRepo) Consume(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return false, nil
	}
	if !l.IsEnabled {
		return false, nil
	}
	if l.OneTime && l.DownloadCount > 0 {
		return false, nil
	}
	l.DownloadCount++
	if l.OneTime {
		l.IsEnabled = false
	}
	return true, nil
}

func (f *fakeLinksRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.links, id)
	return nil
}

func (f *fakeLinksRepo) DeleteByFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, l := range f.links {
		if l.FileID == fileID {
			delete(f.links, id)
		}
	}
	return nil
}

// --- manager / queue ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	s *fakeSessionsRepo
	c *fakeChunksRepo
	f *fakeFilesRepo
	l *fakeLinksRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u: newFakeUsersRepo(),
		s: newFakeSessionsRepo(),
		c: newFakeChunksRepo(),
		f: newFakeFilesRepo(),
		l: newFakeLinksRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository {
	return m.s
}
func (m *fakeRepoManager) Chunks(db dbx.DBTX) chunksrepo.Repository { return m.c }
func (m *fakeRepoManager) Files(db dbx.DBTX) filesrepo.Repository   { return m.f }
func (m *fakeRepoManager) Links(db dbx.DBTX) linksrepo.Repository   { return m.l }

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

type fakeMirror struct {
	mu      sync.Mutex
	enabled bool
	objects map[string][]byte

	mirrorErr error
}

func (m *fakeMirror) Enabled() bool { return m.enabled }

func (m *fakeMirror) Mirror(ctx context.Context, fileID string, body io.Reader) error {
	if m.mirrorErr != nil {
		return m.mirrorErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[objectstore.StorageKey(fileID)] = data
	return nil
}

func (m *fakeMirror) object(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key]
}

var _ BlobMirror = (*fakeMirror)(nil)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job

	submitErr error
}

func (q *fakeQueue) Submit(ctx context.Context, sessionID, fileID string) error {
	if q.submitErr != nil {
		return q.submitErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, queue.Job{SessionID: sessionID, FileID: fileID})
	return nil
}

func (q *fakeQueue) submitted() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queue.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}
