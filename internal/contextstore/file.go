package contextstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"aria/internal/assistant/domain"
	"aria/internal/shared/jsonx"
	"aria/internal/shared/logging"
)

// FileStore persists one JSON document per (user, session) key. Suitable for
// a single-node deployment that must survive restarts.
type FileStore struct {
	baseDir string
	logger  logging.Logger
	mu      sync.Mutex
}

// NewFileStore creates the base directory if needed. "~/" prefixes expand to
// the user home directory.
func NewFileStore(baseDir string, logger logging.Logger) (*FileStore, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create context dir: %w", err)
	}
	return &FileStore{baseDir: baseDir, logger: logging.OrNop(logger)}, nil
}

func (s *FileStore) path(userID, sessionID string) string {
	// Session and user IDs are generated, but sanitize anyway so a hostile
	// key cannot escape the base directory.
	sanitize := func(v string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			default:
				return '_'
			}
		}, v)
	}
	return filepath.Join(s.baseDir, fmt.Sprintf("%s__%s.json", sanitize(userID), sanitize(sessionID)))
}

func (s *FileStore) Get(_ context.Context, userID, sessionID string) (*domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(userID, sessionID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read conversation: %w", err)
	}
	var conv domain.Conversation
	if err := jsonx.Unmarshal(data, &conv); err != nil {
		s.logger.Error("corrupt conversation file for %s/%s: %v", userID, sessionID, err)
		return nil, false, fmt.Errorf("decode conversation %s/%s: %w", userID, sessionID, err)
	}
	return &conv, true, nil
}

func (s *FileStore) Put(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := jsonx.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(conv.UserID, conv.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) Clear(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(userID, sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// Sessions lists stored session keys for a user, for external sweepers that
// implement session expiry policy.
func (s *FileStore) Sessions(userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if userID != "" {
		prefix = s.filePrefix(userID)
	}
	var sessions []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		trimmed := strings.TrimSuffix(name, ".json")
		if idx := strings.Index(trimmed, "__"); idx >= 0 {
			sessions = append(sessions, trimmed[idx+2:])
		}
	}
	return sessions, nil
}

func (s *FileStore) filePrefix(userID string) string {
	base := filepath.Base(s.path(userID, "x"))
	return strings.TrimSuffix(base, "x.json")
}
