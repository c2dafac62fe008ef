package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// InferenceOp is one row of the inference audit log.
type InferenceOp struct {
	ID            int64           `json:"id"`
	OperationType string          `json:"operation_type"`
	SourceData    json.RawMessage `json:"source_data"`
	ResultData    json.RawMessage `json:"result_data"`
	Confidence    float64         `json:"confidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

func insertInferenceOp(x execer, op *InferenceOp) error {
	_, err := x.Exec(`
		INSERT INTO inference_operations (operation_type, source_data, result_data, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, op.OperationType, string(op.SourceData), string(op.ResultData), op.Confidence, toMillis(op.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert inference op: %w", err)
	}
	return nil
}

// AddInferenceOp appends an audit row.
func (db *DB) AddInferenceOp(op *InferenceOp) error { return insertInferenceOp(db, op) }

// RecentInferenceOps returns up to limit audit rows, newest first.
func (db *DB) RecentInferenceOps(limit int) ([]InferenceOp, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, operation_type, source_data, result_data, confidence, created_at
		FROM inference_operations ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list inference ops: %w", err)
	}
	defer rows.Close()

	var out []InferenceOp
	for rows.Next() {
		var op InferenceOp
		var src, res string
		var created int64
		if err := rows.Scan(&op.ID, &op.OperationType, &src, &res, &op.Confidence, &created); err != nil {
			return nil, fmt.Errorf("scan inference op: %w", err)
		}
		op.SourceData = json.RawMessage(src)
		op.ResultData = json.RawMessage(res)
		op.CreatedAt = fromMillis(created)
		out = append(out, op)
	}
	return out, rows.Err()
}
