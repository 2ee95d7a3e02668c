package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/granary-ai/granary/store"
)

func (d *DB) CreateDocument(ctx context.Context, create *store.Document) (*store.Document, error) {
	fields := []string{"uid", "created_ts", "updated_ts", "title", "filename", "content_type", "content", "status", "failure_reason", "size_bytes", "word_count", "chunk_count"}
	args := []any{create.UID, create.CreatedTs, create.UpdatedTs, create.Title, create.Filename, create.ContentType, create.Content, create.Status.String(), create.FailureReason, create.SizeBytes, create.WordCount, create.ChunkCount}

	stmt := `INSERT INTO document (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return create, nil
}

func (d *DB) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if len(find.Statuses) > 0 {
		list := []string{}
		for _, status := range find.Statuses {
			list = append(list, placeholder(len(args)+1))
			args = append(args, status.String())
		}
		where = append(where, "status IN ("+strings.Join(list, ", ")+")")
	}
	if find.ContentType != nil {
		where, args = append(where, "content_type = "+placeholder(len(args)+1)), append(args, *find.ContentType)
	}

	order := "DESC"
	if find.Ascending {
		order = "ASC"
	}
	query := `SELECT id, uid, created_ts, updated_ts, title, filename, content_type, content, status, failure_reason, size_bytes, word_count, chunk_count
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ` + order + `, id ` + order
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
		if find.Offset != nil {
			query += fmt.Sprintf(" OFFSET %d", *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Document, 0)
	for rows.Next() {
		doc := &store.Document{}
		var status string
		if err := rows.Scan(
			&doc.ID,
			&doc.UID,
			&doc.CreatedTs,
			&doc.UpdatedTs,
			&doc.Title,
			&doc.Filename,
			&doc.ContentType,
			&doc.Content,
			&status,
			&doc.FailureReason,
			&doc.SizeBytes,
			&doc.WordCount,
			&doc.ChunkCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Status = store.DocumentStatus(status)
		list = append(list, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateDocument(ctx context.Context, update *store.UpdateDocument) (*store.Document, error) {
	set, args := []string{}, []any{}

	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Content != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *update.Content)
	}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, update.Status.String())
	}
	if update.FailureReason != nil {
		set, args = append(set, "failure_reason = "+placeholder(len(args)+1)), append(args, *update.FailureReason)
	}
	if update.WordCount != nil {
		set, args = append(set, "word_count = "+placeholder(len(args)+1)), append(args, *update.WordCount)
	}
	if update.ChunkCount != nil {
		set, args = append(set, "chunk_count = "+placeholder(len(args)+1)), append(args, *update.ChunkCount)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	// RETURNING all fields to avoid a follow-up query
	stmt := `UPDATE document SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, created_ts, updated_ts, title, filename, content_type, content, status, failure_reason, size_bytes, word_count, chunk_count`
	doc := &store.Document{}
	var status string
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&doc.ID,
		&doc.UID,
		&doc.CreatedTs,
		&doc.UpdatedTs,
		&doc.Title,
		&doc.Filename,
		&doc.ContentType,
		&doc.Content,
		&status,
		&doc.FailureReason,
		&doc.SizeBytes,
		&doc.WordCount,
		&doc.ChunkCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document not found")
		}
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	doc.Status = store.DocumentStatus(status)

	return doc, nil
}

func (d *DB) DeleteDocument(ctx context.Context, delete *store.DeleteDocument) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM document WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("document not found")
	}

	return nil
}

func (d *DB) CountDocuments(ctx context.Context, find *store.FindDocument) (int, error) {
	where, args := []string{"1 = 1"}, []any{}

	if len(find.Statuses) > 0 {
		list := []string{}
		for _, status := range find.Statuses {
			list = append(list, placeholder(len(args)+1))
			args = append(args, status.String())
		}
		where = append(where, "status IN ("+strings.Join(list, ", ")+")")
	}
	if find.ContentType != nil {
		where, args = append(where, "content_type = "+placeholder(len(args)+1)), append(args, *find.ContentType)
	}

	var count int
	query := `SELECT COUNT(*) FROM document WHERE ` + strings.Join(where, " AND ")
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
