package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/model"
)

var documentColumns = []string{
	"d.id", "d.resource_type", "d.content", "d.normalized_content", "d.phonetic_code", "d.ngrams",
	"d.word_count", "d.char_count", "d.created_at", "d.updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, extra ...any) (Document, error) {
	var (
		doc                  Document
		rt                   string
		createdAt, updatedAt string
	)
	dest := []any{
		&doc.ID, &rt, &doc.Content, &doc.NormalizedContent, &doc.PhoneticCode, &doc.NGrams,
		&doc.WordCount, &doc.CharCount, &createdAt, &updatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return Document{}, err
	}
	doc.ResourceType = model.ResourceType(rt)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return doc, nil
}

func withResourceType(b sq.SelectBuilder, resourceType model.ResourceType) sq.SelectBuilder {
	if resourceType == "" {
		return b
	}
	return b.Where(sq.Eq{"d.resource_type": string(resourceType)})
}

// GetDocument loads one document. Returns ErrNotFound when it does not exist.
func (s *IndexStore) GetDocument(ctx context.Context, id string, resourceType model.ResourceType) (*Document, error) {
	row := sq.Select(documentColumns...).
		From("documents d").
		Where(sq.Eq{"d.id": id, "d.resource_type": string(resourceType)}).
		RunWith(s.db).
		QueryRowContext(ctx)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s (%s): %w", id, resourceType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return &doc, nil
}

// ExactMatches returns documents whose whole content equals the query. The
// comparison uses normalized content unless caseSensitive is set, in which
// case the trimmed raw content must match.
func (s *IndexStore) ExactMatches(ctx context.Context, query string, resourceType model.ResourceType, caseSensitive bool, limit int) ([]Document, error) {
	b := sq.Select(documentColumns...).From("documents d")
	if caseSensitive {
		b = b.Where("TRIM(d.content) = ?", strings.TrimSpace(query))
	} else {
		b = b.Where(sq.Eq{"d.normalized_content": fuzzy.Normalize(query, false)})
	}
	b = withResourceType(b, resourceType).OrderBy("d.id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.queryDocuments(ctx, b)
}

// FullTextCandidates runs an FTS5 MATCH expression against the shadow and
// returns the joined primary rows ordered by BM25 rank.
func (s *IndexStore) FullTextCandidates(ctx context.Context, match string, resourceType model.ResourceType, limit int) ([]Candidate, error) {
	if strings.TrimSpace(match) == "" {
		return nil, nil
	}
	b := sq.Select(append(documentColumns, "documents_fts.rank")...).
		From("documents_fts").
		Join("documents d ON d.rowid = documents_fts.rowid").
		Where("documents_fts MATCH ?", match)
	b = withResourceType(b, resourceType).OrderBy("documents_fts.rank")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query full-text candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var rank float64
		doc, err := scanDocument(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan full-text candidate: %w", err)
		}
		out = append(out, Candidate{Document: doc, Rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating full-text candidates: %w", err)
	}
	return out, nil
}

// PhoneticCandidates returns documents whose phonetic key contains every one
// of the given Soundex codes.
func (s *IndexStore) PhoneticCandidates(ctx context.Context, codes []string, resourceType model.ResourceType, limit int) ([]Candidate, error) {
	return s.FullTextCandidates(ctx, BuildPhoneticQuery(codes), resourceType, limit)
}

// ScanDocuments streams every document of the given resource type (all types
// when empty) to fn in id order. Iteration stops at the first error from fn.
// fn must not use the database: the pool holds a single connection.
func (s *IndexStore) ScanDocuments(ctx context.Context, resourceType model.ResourceType, fn func(Document) error) error {
	b := withResourceType(sq.Select(documentColumns...).From("documents d"), resourceType).
		OrderBy("d.id", "d.resource_type")

	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *IndexStore) queryDocuments(ctx context.Context, b sq.SelectBuilder) ([]Document, error) {
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return out, nil
}
