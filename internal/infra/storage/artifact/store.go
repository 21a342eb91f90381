// Package artifact stores the result files produced by completed sessions.
// Every file lives directly in one directory and is addressed by session.ArtifactName.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/internal/infra/storage"
	"github.com/ahrav/specter/pkg/common/logger"
)

const maxNameAttempts = 3

// Store creates, reads and deletes artifacts in a single directory.
type Store struct {
	dir string

	tracer trace.Tracer
	logger *logger.Logger
}

// NewStore creates the directory if needed and returns a Store rooted there.
func NewStore(dir string, log *logger.Logger, tracer trace.Tracer) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	return &Store{dir: dir, logger: log, tracer: tracer}, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name session.ArtifactName) string {
	return filepath.Join(s.dir, filepath.Base(name.String()))
}

// Write persists lines joined by newlines under a new name for target. A name
// collision draws a new suffix; the file is never overwritten.
func (s *Store) Write(ctx context.Context, target session.Target, lines []string) (session.ArtifactName, error) {
	ctx, span := s.tracer.Start(ctx, "artifact_store.write",
		trace.WithAttributes(
			attribute.String("target", target.String()),
			attribute.Int("lines", len(lines)),
		))
	defer span.End()

	content := strings.Join(lines, "\n")

	var name session.ArtifactName
	op := func() error {
		name = session.NewArtifactName(target)
		f, err := os.OpenFile(s.path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				span.AddEvent("artifact_name_collision", trace.WithAttributes(attribute.String("name", name.String())))
				return err
			}
			return backoff.Permanent(err)
		}

		if _, err := io.WriteString(f, content); err != nil {
			_ = f.Close()
			_ = os.Remove(s.path(name))
			return backoff.Permanent(err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(s.path(name))
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxNameAttempts-1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write artifact")
		return "", fmt.Errorf("writing artifact for %s: %w", target, err)
	}

	span.AddEvent("artifact_written", trace.WithAttributes(attribute.String("name", name.String())))
	span.SetStatus(codes.Ok, "artifact written")
	s.logger.Debug(ctx, "artifact written", "name", name, "lines", len(lines))

	return name, nil
}

// Open returns a reader over the named artifact and its metadata.
func (s *Store) Open(ctx context.Context, name session.ArtifactName) (io.ReadCloser, session.ArtifactInfo, error) {
	_, span := s.tracer.Start(ctx, "artifact_store.open",
		trace.WithAttributes(attribute.String("name", name.String())))
	defer span.End()

	f, err := os.Open(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, session.ArtifactInfo{}, fmt.Errorf("%w: %s", session.ErrArtifactNotFound, name)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open artifact")
		return nil, session.ArtifactInfo{}, fmt.Errorf("opening artifact %s: %w", name, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, session.ArtifactInfo{}, fmt.Errorf("stat artifact %s: %w", name, err)
	}
	if !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, session.ArtifactInfo{}, fmt.Errorf("%w: %s", session.ErrArtifactNotFound, name)
	}

	return f, session.ArtifactInfo{Name: name, ModTime: st.ModTime(), Size: st.Size()}, nil
}

// Remove deletes the named artifact. A missing file is not an error.
func (s *Store) Remove(ctx context.Context, name session.ArtifactName) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "artifact_store.remove",
		[]attribute.KeyValue{attribute.String("name", name.String())},
		func(ctx context.Context) error {
			if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("removing artifact %s: %w", name, err)
			}
			return nil
		})
}

// List returns every regular file in the directory whose name matches the
// artifact pattern. Other entries are ignored.
func (s *Store) List(ctx context.Context) ([]session.ArtifactInfo, error) {
	var infos []session.ArtifactInfo
	err := storage.ExecuteAndTrace(ctx, s.tracer, "artifact_store.list", nil, func(ctx context.Context) error {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return fmt.Errorf("listing results dir: %w", err)
		}

		infos = make([]session.ArtifactInfo, 0, len(entries))
		for _, e := range entries {
			name, err := session.ParseArtifactName(e.Name())
			if err != nil || !e.Type().IsRegular() {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				// Removed between ReadDir and Info.
				continue
			}
			infos = append(infos, session.ArtifactInfo{Name: name, ModTime: fi.ModTime(), Size: fi.Size()})
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("count", len(infos)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return infos, nil
}
