package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/e4c-edu/settlement/internal/crypto"
	"github.com/e4c-edu/settlement/internal/model"

	_ "modernc.org/sqlite"
)

// Sentinel errors surfaced by single-row reads and conditional writes.
var (
	// ErrNotProvisioned is returned when a singleton-role wallet does not exist.
	ErrNotProvisioned = errors.New("wallet not provisioned for role")

	// ErrNoStudentWallet is returned when a student has no active wallet.
	ErrNoStudentWallet = errors.New("student has no wallet")

	// ErrWalletExists is returned when a wallet insert would violate the
	// one-wallet-per-role (or per-student) invariant.
	ErrWalletExists = errors.New("wallet already exists")

	// ErrInsufficientTokens is returned when a conditional balance decrement
	// finds fewer tokens than requested (or no student row at all).
	ErrInsufficientTokens = errors.New("insufficient token balance")

	// ErrStudentTaskNotFound is returned when a task approval row is missing.
	ErrStudentTaskNotFound = errors.New("student task not found")

	// ErrDuplicateVoucher is returned when a voucher uuid is reused.
	ErrDuplicateVoucher = errors.New("voucher already recorded")
)

// SQLiteStore is the off-ledger bookkeeping store: wallets, students, tasks,
// task approvals and redemption vouchers. Custodial secret keys are held
// encrypted; the store decrypts on read and encrypts on write using the
// process-wide custody password.
type SQLiteStore struct {
	db       *sql.DB
	password []byte
}

// NewSQLiteStore opens (and if needed initializes) the bookkeeping database.
// password is the wallet secret-key encryption password; the store keeps its
// own copy.
func NewSQLiteStore(path string, password []byte) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection: sqlite serializes writers anyway, and one shared
	// connection keeps concurrent settlement requests out of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pw := make([]byte, len(password))
	copy(pw, password)

	store := &SQLiteStore{db: db, password: pw}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
            role TEXT NOT NULL,
            owner_id TEXT NOT NULL DEFAULT '',
            public_key TEXT NOT NULL,
            secret_salt TEXT NOT NULL DEFAULT '',
            secret_nonce TEXT NOT NULL DEFAULT '',
            secret_cipher TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(role, owner_id)
        );`,
		`CREATE TABLE IF NOT EXISTS students (
            id TEXT PRIMARY KEY,
            tokens_stroops INTEGER NOT NULL DEFAULT 0,
            tasks_completed INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id TEXT PRIMARY KEY,
            points INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS student_tasks (
            id TEXT PRIMARY KEY,
            student_id TEXT NOT NULL,
            task_id TEXT NOT NULL,
            status TEXT NOT NULL,
            UNIQUE(student_id, task_id)
        );`,
		`CREATE TABLE IF NOT EXISTS redeems (
            voucher_uuid TEXT PRIMARY KEY,
            student_id TEXT NOT NULL,
            reward_id TEXT NOT NULL,
            amount_stroops INTEGER NOT NULL,
            tx_hash TEXT NOT NULL,
            status TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database and wipes the custody password.
func (s *SQLiteStore) Close() error {
	clear(s.password)
	return s.db.Close()
}

// InsertWallet persists a wallet row, encrypting the secret key if present.
// The (role, owner) primary key enforces the singleton invariant for
// custodial roles and one-active-wallet-per-student.
func (s *SQLiteStore) InsertWallet(ctx context.Context, w *model.Wallet) error {
	var blob model.SecretBlob
	if w.SecretKey != "" {
		encrypted, err := crypto.EncryptSecret(w.SecretKey, s.password)
		if err != nil {
			return fmt.Errorf("encrypt secret key: %w", err)
		}
		blob = *encrypted
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (role, owner_id, public_key, secret_salt, secret_nonce, secret_cipher)
         VALUES (?, ?, ?, ?, ?, ?)`,
		string(w.Role), w.OwnerID, w.PublicKey, blob.Salt, blob.Nonce, blob.CipherText)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrWalletExists
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// WalletByRole resolves the singleton wallet for a custodial role.
func (s *SQLiteStore) WalletByRole(ctx context.Context, role model.Role) (*model.Wallet, error) {
	w, err := s.scanWallet(s.db.QueryRowContext(ctx,
		`SELECT role, owner_id, public_key, secret_salt, secret_nonce, secret_cipher
         FROM wallets WHERE role = ? AND owner_id = ''`, string(role)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotProvisioned
	}
	return w, err
}

// StudentWallet resolves a student's active wallet.
func (s *SQLiteStore) StudentWallet(ctx context.Context, studentID string) (*model.Wallet, error) {
	w, err := s.scanWallet(s.db.QueryRowContext(ctx,
		`SELECT role, owner_id, public_key, secret_salt, secret_nonce, secret_cipher
         FROM wallets WHERE role = ? AND owner_id = ?`, string(model.RoleStudent), studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoStudentWallet
	}
	return w, err
}

func (s *SQLiteStore) scanWallet(row *sql.Row) (*model.Wallet, error) {
	var (
		w    model.Wallet
		role string
		blob model.SecretBlob
	)
	if err := row.Scan(&role, &w.OwnerID, &w.PublicKey, &blob.Salt, &blob.Nonce, &blob.CipherText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	w.Role = model.Role(role)

	if blob.CipherText != "" {
		secret, err := crypto.DecryptSecret(&blob, s.password)
		if err != nil {
			return nil, fmt.Errorf("decrypt secret key for role %s: %w", role, err)
		}
		w.SecretKey = secret
	}
	return &w, nil
}

// RotateWalletKeys re-encrypts every stored secret key with a new custody
// password. The store uses the new password from then on.
func (s *SQLiteStore) RotateWalletKeys(ctx context.Context, newPassword []byte) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, owner_id, secret_salt, secret_nonce, secret_cipher
         FROM wallets WHERE secret_cipher != ''`)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	type rotated struct {
		role, owner string
		blob        model.SecretBlob
	}
	var pending []rotated
	for rows.Next() {
		var r rotated
		var blob model.SecretBlob
		if err := rows.Scan(&r.role, &r.owner, &blob.Salt, &blob.Nonce, &blob.CipherText); err != nil {
			return fmt.Errorf("scan wallet: %w", err)
		}
		reblob, err := crypto.Reencrypt(&blob, s.password, newPassword)
		if err != nil {
			return fmt.Errorf("re-encrypt wallet %s/%s: %w", r.role, r.owner, err)
		}
		r.blob = *reblob
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, r := range pending {
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET secret_salt = ?, secret_nonce = ?, secret_cipher = ?
             WHERE role = ? AND owner_id = ?`,
			r.blob.Salt, r.blob.Nonce, r.blob.CipherText, r.role, r.owner); err != nil {
			return fmt.Errorf("update wallet %s/%s: %w", r.role, r.owner, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	clear(s.password)
	s.password = make([]byte, len(newPassword))
	copy(s.password, newPassword)
	return nil
}

// InsertRedeem records a voucher. Voucher rows are write-once.
func (s *SQLiteStore) InsertRedeem(ctx context.Context, v *model.Voucher) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO redeems (voucher_uuid, student_id, reward_id, amount_stroops, tx_hash, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.UUID, v.StudentID, v.RewardID, v.AmountStroops, v.TxHash, v.Status, v.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateVoucher
		}
		return fmt.Errorf("insert redeem: %w", err)
	}
	return nil
}

// VoucherByUUID looks up a voucher by its canonical (untruncated) uuid.
func (s *SQLiteStore) VoucherByUUID(ctx context.Context, uuid string) (*model.Voucher, error) {
	var (
		v  model.Voucher
		ts time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT voucher_uuid, student_id, reward_id, amount_stroops, tx_hash, status, created_at
         FROM redeems WHERE voucher_uuid = ?`, uuid).
		Scan(&v.UUID, &v.StudentID, &v.RewardID, &v.AmountStroops, &v.TxHash, &v.Status, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("select redeem: %w", err)
	}
	v.CreatedAt = ts
	return &v, nil
}

// DecrementStudentTokens applies a single atomic conditional decrement to a
// student's cached balance. It refuses to go negative.
func (s *SQLiteStore) DecrementStudentTokens(ctx context.Context, studentID string, amountStroops int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET tokens_stroops = tokens_stroops - ?
         WHERE id = ? AND tokens_stroops >= ?`,
		amountStroops, studentID, amountStroops)
	if err != nil {
		return fmt.Errorf("decrement tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientTokens
	}
	return nil
}

// StudentTask fetches one task approval row.
func (s *SQLiteStore) StudentTask(ctx context.Context, id string) (*model.StudentTask, error) {
	var st model.StudentTask
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, task_id, status FROM student_tasks WHERE id = ?`, id).
		Scan(&st.ID, &st.StudentID, &st.TaskID, &st.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select student task: %w", err)
	}
	return &st, nil
}

// ApproveStudentTask marks a task approval as settled (paid out).
func (s *SQLiteStore) ApproveStudentTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE student_tasks SET status = ? WHERE id = ?`, model.TaskStatusApproved, id)
	if err != nil {
		return fmt.Errorf("approve student task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStudentTaskNotFound
	}
	return nil
}

// ApprovedTaskTotals is the source-of-truth projection for one student: the
// sum of points over approved tasks and how many there are. Balances are
// derived from this, never incremented.
func (s *SQLiteStore) ApprovedTaskTotals(ctx context.Context, studentID string) (points int64, count int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(t.points), 0), COUNT(st.id)
         FROM student_tasks st
         JOIN tasks t ON t.id = st.task_id
         WHERE st.student_id = ? AND st.status = ?`,
		studentID, model.TaskStatusApproved).Scan(&points, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("approved task totals: %w", err)
	}
	return points, count, nil
}

// RedeemedTotal sums the stroops a student has spent through completed
// vouchers. Together with ApprovedTaskTotals this defines the derived
// balance.
func (s *SQLiteStore) RedeemedTotal(ctx context.Context, studentID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_stroops), 0) FROM redeems
         WHERE student_id = ? AND status = ?`,
		studentID, model.VoucherStatusCompleted).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("redeemed total: %w", err)
	}
	return total, nil
}

// UpdateStudentMetrics writes back the derived balance and completed count.
// The student row is created if missing so reconciliation can run before
// enrollment finishes.
func (s *SQLiteStore) UpdateStudentMetrics(ctx context.Context, studentID string, tokensStroops int64, completed int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, tokens_stroops, tasks_completed) VALUES (?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET tokens_stroops = excluded.tokens_stroops,
                                       tasks_completed = excluded.tasks_completed`,
		studentID, tokensStroops, completed)
	if err != nil {
		return fmt.Errorf("update student metrics: %w", err)
	}
	return nil
}

// StudentIDsWithApprovedTasks lists students the reconciliation sweep should
// recompute.
func (s *SQLiteStore) StudentIDsWithApprovedTasks(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT student_id FROM student_tasks WHERE status = ?`, model.TaskStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertStudent seeds or overwrites a student row. Enrollment and the
// validation workflow own these rows in production; settlement only reads
// and conditionally updates them.
func (s *SQLiteStore) UpsertStudent(ctx context.Context, id string, tokensStroops int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, tokens_stroops) VALUES (?, ?)
         ON CONFLICT(id) DO UPDATE SET tokens_stroops = excluded.tokens_stroops`,
		id, tokensStroops)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// InsertTask seeds a task definition with its point value.
func (s *SQLiteStore) InsertTask(ctx context.Context, id string, points int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (id, points) VALUES (?, ?)`, id, points)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// InsertStudentTask seeds a task approval row.
func (s *SQLiteStore) InsertStudentTask(ctx context.Context, st *model.StudentTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO student_tasks (id, student_id, task_id, status) VALUES (?, ?, ?, ?)`,
		st.ID, st.StudentID, st.TaskID, st.Status)
	if err != nil {
		return fmt.Errorf("insert student task: %w", err)
	}
	return nil
}

// StudentMetrics reads the cached derived metrics for a student.
func (s *SQLiteStore) StudentMetrics(ctx context.Context, studentID string) (tokensStroops int64, completed int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT tokens_stroops, tasks_completed FROM students WHERE id = ?`, studentID).
		Scan(&tokensStroops, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("select student: %w", err)
	}
	return tokensStroops, completed, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
