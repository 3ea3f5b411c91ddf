package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dialog-processor/src/fsstore"
	"dialog-processor/src/models"
)

const fileLockTimeout = 5 * time.Second

// sessionFilePath returns the durable JSON file for a session. Files are
// keyed by session ID, never by token, so token rotation rewrites the same
// file.
func (s *Store) sessionFilePath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id != filepath.Base(id) {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.fileDir, id+".json"), nil
}

func (s *Store) writeFile(ctx context.Context, sess *models.Session) error {
	path, err := s.sessionFilePath(sess.ID)
	if err != nil {
		return err
	}
	lockCtx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()
	return fsstore.WithLock(lockCtx, path+".lck", func() error {
		return fsstore.WriteJSONAtomic(path, sess)
	})
}

func (s *Store) readFileSession(id string) (*models.Session, bool, error) {
	path, err := s.sessionFilePath(id)
	if err != nil {
		return nil, false, err
	}
	var sess models.Session
	found, err := fsstore.ReadJSON(path, &sess)
	if err != nil || !found {
		return nil, false, err
	}
	return &sess, true, nil
}

func (s *Store) removeFile(id string) {
	path, err := s.sessionFilePath(id)
	if err != nil {
		return
	}
	for _, p := range []string{path, path + ".lck"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Session file remove failed", "path", p, "error", err)
		}
	}
}

// listFileSessionIDs enumerates the session IDs present in the file tier.
func (s *Store) listFileSessionIDs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.fileDir, "*.json"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	return ids, nil
}
