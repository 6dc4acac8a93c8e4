// Package session keeps bounded conversation history in memory and persists
// each session as one JSON file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

const fileExt = ".json"

// Roles as written on disk.
const (
	diskRoleHuman = "human"
	diskRoleAI    = "ai"
)

type diskTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FileStore is safe for concurrent use. maxTurns counts user/assistant
// exchanges; after every Append the session is trimmed to 2*maxTurns turns.
type FileStore struct {
	dir      string
	maxTurns int
	logger   *log.Logger

	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewFileStore(dir string, maxTurns int, l *log.Logger) *FileStore {
	if l == nil {
		l = logger.Discard()
	}
	return &FileStore{
		dir:      dir,
		maxTurns: maxTurns,
		logger:   l,
		sessions: make(map[string]*domain.Session),
	}
}

func (s *FileStore) Dir() string { return s.dir }

// Get returns a copy of the session, restoring it from disk on first use.
// A missing file yields an empty session; an unreadable one yields
// domain.ErrSessionRestore and nothing is cached.
func (s *FileStore) Get(id string) (domain.Session, error) {
	if err := ValidateID(id); err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(id)
	if err != nil {
		return domain.Session{}, err
	}
	return sess.Clone(), nil
}

func (s *FileStore) getLocked(id string) (*domain.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}

	turns, err := s.restore(id)
	if err != nil {
		return nil, err
	}
	sess := &domain.Session{ID: id, Turns: turns}
	s.sessions[id] = sess
	if len(turns) > 0 {
		s.logger.Debug("session restored", "id", id, "turns", len(turns))
	}
	return sess, nil
}

func (s *FileStore) restore(id string) ([]domain.Turn, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSessionRestore, id, err)
	}

	// json.Unmarshal accepts null for a slice; a session file is always an array.
	if trimmed := strings.TrimSpace(string(data)); !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: %s: top-level value is not an array", domain.ErrSessionRestore, id)
	}
	var disk []diskTurn
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSessionRestore, id, err)
	}

	turns := make([]domain.Turn, 0, len(disk))
	for i, t := range disk {
		role, err := fromDiskRole(t.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: turn %d: %v", domain.ErrSessionRestore, id, i, err)
		}
		turns = append(turns, domain.Turn{Role: role, Content: t.Content})
	}
	return turns, nil
}

func (s *FileStore) Append(id string, role domain.Role, content string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: role %q", domain.ErrInvalidArgument, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	sess.Turns = append(sess.Turns, domain.Turn{Role: role, Content: content})
	if s.maxTurns > 0 {
		trim(sess, 2*s.maxTurns)
	}
	return nil
}

// Trim drops the oldest turns until at most maxTurns remain. maxTurns <= 0
// leaves the session unbounded.
func (s *FileStore) Trim(id string, maxTurns int) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	trim(sess, maxTurns)
	return nil
}

func trim(sess *domain.Session, maxTurns int) {
	if maxTurns <= 0 || len(sess.Turns) <= maxTurns {
		return
	}
	drop := len(sess.Turns) - maxTurns
	sess.Turns = append(sess.Turns[:0:0], sess.Turns[drop:]...)
}

// Save overwrites <dir>/<id>.json with the in-memory turns. Saving a session
// that was never loaded does nothing.
func (s *FileStore) Save(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	var disk []diskTurn
	if ok {
		disk = make([]diskTurn, 0, len(sess.Turns))
		for _, t := range sess.Turns {
			disk = append(disk, diskTurn{Role: toDiskRole(t.Role), Content: t.Content})
		}
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	data, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", id, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return writeFileAtomic(s.path(id), data)
}

// Delete forgets the in-memory copy. The file on disk is kept.
func (s *FileStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// List returns the ids of persisted sessions, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetCorrupt moves an unreadable session file to <id>.json.corrupt so the
// session starts empty on the next Get. It returns the new path, or "" when
// there was nothing to move.
func (s *FileStore) ResetCorrupt(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.path(id)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	dst := src + ".corrupt"
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("failed to move corrupt session: %w", err)
	}
	delete(s.sessions, id)
	s.logger.Warn("corrupt session moved aside", "id", id, "path", dst)
	return dst, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// ValidateID rejects ids that are empty or are not a single path element.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty session id", domain.ErrInvalidArgument)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return fmt.Errorf("%w: session id %q", domain.ErrInvalidArgument, id)
	}
	return nil
}

func toDiskRole(r domain.Role) string {
	if r == domain.RoleAssistant {
		return diskRoleAI
	}
	return diskRoleHuman
}

func fromDiskRole(r string) (domain.Role, error) {
	switch r {
	case diskRoleHuman:
		return domain.RoleUser, nil
	case diskRoleAI:
		return domain.RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role %q", r)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
