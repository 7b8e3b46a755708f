// Package docs loads the rule-SQL reference documents that seed the agent's
// instructions.
package docs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/rulesql/errors"
	"go.uber.org/zap"
)

// Pattern selects the reference documents inside the docs directory.
const Pattern = "*.md"

// Source is the glob the documents of dir are selected by, for display.
func Source(dir string) string {
	return filepath.Join(dir, Pattern)
}

// Files returns the paths of the reference documents in dir, in directory
// enumeration order. It fails if dir is not an existing directory.
func Files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open docs directory")
	}
	if !info.IsDir() {
		return nil, errors.New("'%s' is not a valid directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), Pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, errors.Wrapf(err, "could not list documents in '%s'", dir)
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return paths, nil
}

// Load reads every reference document in dir and joins their contents with
// newlines. Callers must not depend on document order.
func Load(dir string, log *zap.Logger) (string, error) {
	files, err := Files(dir)
	if err != nil {
		return "", err
	}

	contents := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", errors.Wrapf(err, "could not read document '%s'", f)
		}
		log.Info("loaded reference document", zap.String("file", f), zap.Int("bytes", len(data)))
		contents = append(contents, string(data))
	}
	if len(files) == 0 {
		log.Warn("no reference documents found", zap.String("pattern", Source(dir)))
	}
	return strings.Join(contents, "\n"), nil
}
