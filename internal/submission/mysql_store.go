package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

// MySQLStore 使用 MySQL 记录提交状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore 并初始化表结构。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS submissions (
        id VARCHAR(64) PRIMARY KEY,
        account VARCHAR(255) DEFAULT '',
        chain VARCHAR(64) DEFAULT '',
        calls TEXT NOT NULL,
        capabilities TEXT,
        version VARCHAR(16) DEFAULT '',
        status VARCHAR(32) NOT NULL,
        batch_id VARCHAR(255) DEFAULT '',
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_submission_status (status),
        INDEX idx_submission_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 submissions 表失败")
	}
	return nil
}

// Create 插入新的提交记录。
func (s *MySQLStore) Create(ctx context.Context, sub *Submission) error {
	if sub == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "submission 不能为空")
	}
	if strings.TrimSpace(sub.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "提交 ID 不能为空")
	}

	now := time.Now().Unix()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	callsValue, err := json.Marshal(sub.Calls)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码调用列表失败")
	}
	capabilitiesValue, err := marshalCapabilities(sub.Capabilities)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 capabilities 失败")
	}

	const stmt = `INSERT INTO submissions
        (id, account, chain, calls, capabilities, version, status, batch_id, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		sub.ID,
		sub.Account,
		sub.Chain,
		string(callsValue),
		capabilitiesValue,
		sub.Version,
		sub.Status,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrSubmissionConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入提交记录失败")
	}
	return nil
}

// Get 查询指定提交记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Submission, error) {
	const stmt = `SELECT id, account, chain, calls, capabilities, version, status, batch_id, last_error, error_code, created_at, updated_at
        FROM submissions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	return scanSubmission(row)
}

// Claim 以条件更新的方式把 pending 记录迁移到 dispatching，保证一条
// 记录在并发消费下也只会被投递一次。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Submission, error) {
	const stmt = `UPDATE submissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, stmt, StatusDispatching, time.Now().Unix(), id, StatusPending)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新提交状态失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取更新行数失败")
	}

	sub, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 0 {
		if sub.Status == StatusSucceeded {
			return sub, ErrSubmissionCompleted
		}
		return sub, ErrSubmissionConflict
	}
	return sub, nil
}

// MarkSucceeded 记录钱包返回的批次标识。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, batchID string) error {
	const stmt = `UPDATE submissions SET status = ?, batch_id = ?, last_error = '', error_code = '', updated_at = ? WHERE id = ?`
	return s.exec(ctx, stmt, StatusSucceeded, batchID, time.Now().Unix(), id)
}

// MarkFailed 标记投递失败，失败为终态。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code string, lastError string) error {
	const stmt = `UPDATE submissions SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`
	return s.exec(ctx, stmt, StatusFailed, lastError, code, time.Now().Unix(), id)
}

func (s *MySQLStore) exec(ctx context.Context, stmt string, args ...any) error {
	result, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新提交记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取更新行数失败")
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// List 返回最近的提交记录。
func (s *MySQLStore) List(ctx context.Context, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	const stmt = `SELECT id, account, chain, calls, capabilities, version, status, batch_id, last_error, error_code, created_at, updated_at
        FROM submissions ORDER BY updated_at DESC, id ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提交记录失败")
	}
	defer rows.Close()

	var results []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历提交记录失败")
	}
	return results, nil
}

// Close 释放数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	var callsValue string
	var capabilitiesValue sql.NullString
	var lastError sql.NullString

	err := row.Scan(
		&sub.ID,
		&sub.Account,
		&sub.Chain,
		&callsValue,
		&capabilitiesValue,
		&sub.Version,
		&sub.Status,
		&sub.BatchID,
		&lastError,
		&sub.ErrorCode,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取提交记录失败")
	}

	if err := json.Unmarshal([]byte(callsValue), &sub.Calls); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解码调用列表失败")
	}
	if capabilitiesValue.Valid && capabilitiesValue.String != "" {
		if err := json.Unmarshal([]byte(capabilitiesValue.String), &sub.Capabilities); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解码 capabilities 失败")
		}
	}
	sub.LastError = lastError.String
	return &sub, nil
}

func marshalCapabilities(capabilities map[string]any) (string, error) {
	if len(capabilities) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(capabilities)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

var _ Store = (*MySQLStore)(nil)
