package db

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/daviddao/mailagent/internal/types"
)

// AddDocument stores an embedded document. An empty ID is replaced with a
// generated one, which is written back to doc.
func (d *DB) AddDocument(doc *types.Document) error {
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document %q has no embedding", doc.ID)
	}
	if doc.ID == "" {
		doc.ID = GenID()
	}
	if doc.CreatedAt == "" {
		doc.CreatedAt = Now()
	}

	_, err := d.conn.Exec(`
		INSERT OR REPLACE INTO documents (id, email_id, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, nullStr(doc.EmailID), doc.Content, EncodeEmbedding(doc.Embedding), doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

// Documents returns every indexed document with its embedding, oldest first.
func (d *DB) Documents() ([]*types.Document, error) {
	rows, err := d.conn.Query(`
		SELECT id, email_id, content, embedding, created_at
		FROM documents
		ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*types.Document
	for rows.Next() {
		doc := &types.Document{}
		var emailID sql.NullString
		var blob []byte
		if err := rows.Scan(&doc.ID, &emailID, &doc.Content, &blob, &doc.CreatedAt); err != nil {
			return nil, err
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		doc.EmailID = emailID.String
		doc.Embedding = vec
		result = append(result, doc)
	}
	return result, rows.Err()
}

// DocumentCount returns the number of indexed documents.
func (d *DB) DocumentCount() int {
	var n int
	d.conn.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	return n
}

// ClearDocuments removes every indexed document.
func (d *DB) ClearDocuments() error {
	_, err := d.conn.Exec("DELETE FROM documents")
	return err
}

// EncodeEmbedding packs a vector as little-endian float32s.
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding unpacks a vector written by EncodeEmbedding.
func DecodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
