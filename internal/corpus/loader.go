package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize caps individual note files. Larger files are skipped
// with a warning rather than failing the whole load.
const DefaultMaxFileSize = 2 * 1024 * 1024

// LoadOptions configures a notes directory walk.
type LoadOptions struct {
	// Extensions lists accepted file extensions, lowercase with dot.
	Extensions []string
	// MaxFileSize caps individual files in bytes (default 2 MiB).
	MaxFileSize int64
}

// DefaultLoadOptions accepts markdown and plain-text notes.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Extensions:  []string{".md", ".txt"},
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Load walks the notes directory and builds one Document per note file.
//
// The first path element below root names the subject: notes/Algo/tri.md
// is tagged matiere=Algo. Files directly under root carry no subject.
// Hidden directories and files are skipped. Documents come back in
// deterministic walk order, which downstream indexes rely on for stable
// tie-breaking.
func Load(ctx context.Context, root string, opts LoadOptions) ([]Document, error) {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultLoadOptions().Extensions
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	accepted := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		accepted[strings.ToLower(ext)] = true
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve notes root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("notes root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("notes root %s is not a directory", root)
	}

	var docs []Document
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		name := d.Name()
		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !accepted[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > opts.MaxFileSize {
			slog.Warn("skipping oversized note",
				slog.String("path", path),
				slog.Int64("size", fi.Size()))
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read note %s: %w", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}

		meta := NewMetadata(
			MetaFilename, name,
			MetaFilepath, filepath.ToSlash(rel),
		)
		if subject := subjectFor(rel); subject != "" {
			meta = meta.With(MetaSubject, subject)
		}

		docs = append(docs, NewDocument(content, meta))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("notes loaded",
		slog.String("root", root),
		slog.Int("documents", len(docs)))
	return docs, nil
}

// subjectFor derives the subject from the first path element, or ""
// for files at the root.
func subjectFor(rel string) string {
	rel = filepath.ToSlash(rel)
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return ""
}
