// Package store 负责把模拟产出的事件日志持久化到 SQLite。
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"intraday-sim/internal/config"
	"intraday-sim/internal/sim"
)

// Store 封装 SQLite 连接。
type Store struct {
	db *sql.DB
}

// NewSQLite 根据配置初始化 SQLite 存储。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		dsn = ":memory:"
	} else {
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("设置 SQLite 参数失败: %w", err)
		}
	}

	return &Store{db: conn}, nil
}

// 事件日志表：一行对应一个生命周期事件，列名与下游分析工具约定一致。
const historySchema = `
CREATE TABLE IF NOT EXISTS order_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	order_id TEXT NOT NULL,
	strategy_id TEXT,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	contract_time TIMESTAMP NOT NULL,
	submission_time TIMESTAMP,
	execution_time TIMESTAMP,
	status TEXT NOT NULL,
	event_type TEXT NOT NULL,
	update_count INTEGER NOT NULL,
	execution_price REAL
);
CREATE INDEX IF NOT EXISTS idx_order_history_run ON order_history (run_id, seq);
`

// Migrate 创建事件日志表。
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("创建事件日志表失败: %w", err)
	}
	return nil
}

const insertHistory = `
INSERT INTO order_history (
	run_id, seq, order_id, strategy_id, side, price, quantity,
	contract_time, submission_time, execution_time,
	status, event_type, update_count, execution_price
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

// SaveHistory 在单个事务中按顺序写入一次运行的事件日志。
func (s *Store) SaveHistory(ctx context.Context, runID string, records []sim.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertHistory)
	if err != nil {
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, record := range records {
		_, err = stmt.ExecContext(ctx,
			runID, i,
			record.OrderID, record.StrategyID, record.Side,
			record.Price, record.Quantity,
			record.ContractTime.UTC(),
			nullableTime(record.SubmissionTime),
			nullableTime(record.ExecutionTime),
			record.Status, record.EventType, record.UpdateCount,
			nullableFloat(record.ExecutionPrice),
		)
		if err != nil {
			return fmt.Errorf("写入事件日志第%d行失败: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事件日志失败: %w", err)
	}
	return nil
}

const selectHistory = `
SELECT order_id, strategy_id, side, price, quantity,
	contract_time, submission_time, execution_time,
	status, event_type, update_count, execution_price
FROM order_history WHERE run_id = ? ORDER BY seq;`

// LoadHistory 按写入顺序读回一次运行的事件日志。
func (s *Store) LoadHistory(ctx context.Context, runID string) ([]sim.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectHistory, runID)
	if err != nil {
		return nil, fmt.Errorf("查询事件日志失败: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []sim.Record
	for rows.Next() {
		var record sim.Record
		var submission, execution sql.NullTime
		var executionPrice sql.NullFloat64
		err = rows.Scan(
			&record.OrderID, &record.StrategyID, &record.Side,
			&record.Price, &record.Quantity,
			&record.ContractTime, &submission, &execution,
			&record.Status, &record.EventType, &record.UpdateCount,
			&executionPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("读取事件日志失败: %w", err)
		}
		if submission.Valid {
			record.SubmissionTime = submission.Time
		}
		if execution.Valid {
			record.ExecutionTime = execution.Time
		}
		if executionPrice.Valid {
			price := executionPrice.Float64
			record.ExecutionPrice = &price
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历事件日志失败: %w", err)
	}
	return records, nil
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
