package rewriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"
)

// MarkdownRewriter substitutes image filenames inside reference documents:
// every file with the configured extension directly under the configured
// directory. Matching is a raw substring match on the basename, so a name
// that happens to appear in unrelated text is rewritten too.
type MarkdownRewriter struct {
	dir    string
	ext    string
	dryRun bool
}

func NewMarkdownRewriter(dir, ext string, dryRun bool) *MarkdownRewriter {
	return &MarkdownRewriter{dir: dir, ext: ext, dryRun: dryRun}
}

// Rewrite replaces all occurrences of oldName with newName and returns the
// number of documents that changed. Each changed document is replaced
// atomically: the new content is written to a temp file in the same
// directory and renamed over the original.
func (r *MarkdownRewriter) Rewrite(oldName, newName string) (int, error) {
	docs, err := filepath.Glob(filepath.Join(r.dir, "*"+r.ext))
	if err != nil {
		return 0, fmt.Errorf("globbing documents in %s: %w", r.dir, err)
	}

	updated := 0
	for _, doc := range docs {
		changed, err := r.rewriteDoc(doc, oldName, newName)
		if err != nil {
			return updated, err
		}
		if changed {
			updated++
		}
	}

	return updated, nil
}

func (r *MarkdownRewriter) rewriteDoc(doc, oldName, newName string) (bool, error) {
	content, err := os.ReadFile(doc)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", doc, err)
	}

	if !strings.Contains(string(content), oldName) {
		return false, nil
	}

	replaced := strings.ReplaceAll(string(content), oldName, newName)
	if replaced == string(content) {
		// Defensive: a match that substitutes to identical content is a no-op.
		return false, nil
	}

	if r.dryRun {
		log.Info().Str("doc", doc).Str("old", oldName).Str("new", newName).
			Msg("would update reference document")
		return true, nil
	}

	if err := replaceAtomic(doc, []byte(replaced)); err != nil {
		return false, fmt.Errorf("updating %s: %w", doc, err)
	}

	log.Info().Str("doc", doc).Str("old", oldName).Str("new", newName).
		Msg("updated reference document")
	return true, nil
}

// replaceAtomic writes content to a uuid-suffixed temp file next to doc and
// renames it over the original, so a crash mid-write never leaves a
// half-written document as the canonical file.
func replaceAtomic(doc string, content []byte) error {
	info, err := os.Stat(doc)
	if err != nil {
		return err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(doc), fmt.Sprintf(".%s.%s.tmp", filepath.Base(doc), id.String()))

	if err := os.WriteFile(tmp, content, info.Mode().Perm()); err != nil {
		return err
	}

	if err := os.Rename(tmp, doc); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}
