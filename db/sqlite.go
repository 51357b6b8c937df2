// Package db 提供训练历史与数据集记录的SQLite存储
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filename TEXT NOT NULL,
    filepath TEXT NOT NULL,
    rows INTEGER NOT NULL,
    columns TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    uploaded_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS training_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset_path TEXT NOT NULL,
    model_type VARCHAR(50) NOT NULL,
    status VARCHAR(20) NOT NULL,
    accuracy REAL DEFAULT 0,
    precision REAL DEFAULT 0,
    recall REAL DEFAULT 0,
    f1_score REAL DEFAULT 0,
    train_samples INTEGER DEFAULT 0,
    test_samples INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    error TEXT DEFAULT '',
    trained_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_runs_trained_at ON training_runs(trained_at);
`

// TrainingRun 训练记录
type TrainingRun struct {
	ID           int64     `json:"id"`
	DatasetPath  string    `json:"dataset_path"`
	ModelType    string    `json:"model_type"`
	Status       string    `json:"status"`
	Accuracy     float64   `json:"accuracy"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	F1Score      float64   `json:"f1_score"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	TrainedAt    time.Time `json:"trained_at"`
}

// 训练状态
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// DatasetRecord 上传数据集记录
type DatasetRecord struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	Filepath   string    `json:"filepath"`
	Rows       int       `json:"rows"`
	Columns    []string  `json:"columns"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store SQLite存储
type Store struct {
	db *sql.DB
}

// Open 打开数据库并初始化表结构
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// sqlite3 只允许单写者
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTrainingRun 保存一次训练记录
func (s *Store) RecordTrainingRun(ctx context.Context, run *TrainingRun) error {
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_runs (dataset_path, model_type, status, accuracy, precision, recall, f1_score,
            train_samples, test_samples, duration_ms, error, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.DatasetPath, run.ModelType, run.Status, run.Accuracy, run.Precision, run.Recall, run.F1Score,
		run.TrainSamples, run.TestSamples, run.DurationMs, run.Error, run.TrainedAt)
	if err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	return err
}

// ListTrainingRuns 查询最近的训练记录
func (s *Store) ListTrainingRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, dataset_path, model_type, status, accuracy, precision, recall, f1_score,
            train_samples, test_samples, duration_ms, error, trained_at
        FROM training_runs ORDER BY trained_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(&run.ID, &run.DatasetPath, &run.ModelType, &run.Status, &run.Accuracy,
			&run.Precision, &run.Recall, &run.F1Score, &run.TrainSamples, &run.TestSamples,
			&run.DurationMs, &run.Error, &run.TrainedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordDataset 保存上传的数据集信息
func (s *Store) RecordDataset(ctx context.Context, rec *DatasetRecord) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO datasets (filename, filepath, rows, columns, size_bytes, uploaded_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Filename, rec.Filepath, rec.Rows, strings.Join(rec.Columns, "\x1f"), rec.SizeBytes, rec.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// ListDatasets 查询上传过的数据集
func (s *Store) ListDatasets(ctx context.Context, limit int) ([]DatasetRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, filename, filepath, rows, columns, size_bytes, uploaded_at
        FROM datasets ORDER BY uploaded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]DatasetRecord, 0)
	for rows.Next() {
		var rec DatasetRecord
		var columns string
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Filepath, &rec.Rows, &columns,
			&rec.SizeBytes, &rec.UploadedAt); err != nil {
			return nil, err
		}
		if columns != "" {
			rec.Columns = strings.Split(columns, "\x1f")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
