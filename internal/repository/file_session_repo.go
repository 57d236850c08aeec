package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"neodiag/internal/model"
)

// FileSessionRepo keeps one indented JSON file per session under dir.
type FileSessionRepo struct {
	dir    string
	logger *slog.Logger
}

var _ SessionRepo = (*FileSessionRepo)(nil)

// NewFileSessionRepo creates dir if needed.
func NewFileSessionRepo(dir string, opts ...Option) (*FileSessionRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	o := buildOptions(opts)
	return &FileSessionRepo{dir: dir, logger: o.logger}, nil
}

// SessionPath returns the file a session id is stored in.
func (r *FileSessionRepo) SessionPath(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// Save writes to a temp file and renames it over the old record, so readers
// never see a half-written snapshot.
func (r *FileSessionRepo) Save(_ context.Context, session *model.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, "."+session.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	if err := os.Rename(tmp.Name(), r.SessionPath(session.ID)); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (r *FileSessionRepo) Load(_ context.Context, id string) (*model.Session, error) {
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	data, err := os.ReadFile(r.SessionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession(id, data)
}

func (r *FileSessionRepo) ListAll(ctx context.Context) ([]*model.Session, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}

	type stamped struct {
		session *model.Session
		modTime time.Time
	}
	var found []stamped
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		info, err := entry.Info()
		if err != nil {
			r.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		session, err := r.Load(ctx, id)
		if err != nil {
			r.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		found = append(found, stamped{session: session, modTime: info.ModTime()})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].modTime.After(found[j].modTime)
	})
	sessions := make([]*model.Session, len(found))
	for i, f := range found {
		sessions[i] = f.session
	}
	return sessions, nil
}

// Ping checks that the sessions directory is still there.
func (r *FileSessionRepo) Ping(context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", r.dir)
	}
	return nil
}
