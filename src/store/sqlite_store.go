package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/username/fundfolio/src/models"
)

// DefaultAccount is the seeded grouping that every fund falls back to.
// It cannot be renamed or deleted.
const DefaultAccount = "Default"

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateFund    = errors.New("fund code already exists")
	ErrDuplicateAccount = errors.New("account already exists")
	ErrAccountInUse     = errors.New("account still has funds assigned")
	ErrDefaultAccount   = errors.New("the default account cannot be changed")
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened sqlite database (schema already ensured)
// and seeds the default account if the accounts table is empty.
func NewSQLiteStore(db *sql.DB) (Store, error) {
	s := &sqliteStore{db: db}
	if err := s.seedDefaultAccount(); err != nil {
		return nil, fmt.Errorf("seeding default account: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) seedDefaultAccount() error {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM accounts").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := s.db.Exec("INSERT INTO accounts (name, sort_order) VALUES (?, 1)", DefaultAccount)
	return err
}

func (s *sqliteStore) Accounts() ([]models.Account, error) {
	rows, err := s.db.Query("SELECT id, name, COALESCE(sort_order, id) FROM accounts ORDER BY sort_order ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.SortOrder); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *sqliteStore) CreateAccount(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("account name must not be empty")
	}
	var next int64
	if err := s.db.QueryRow("SELECT COALESCE(MAX(sort_order), 0) + 1 FROM accounts").Scan(&next); err != nil {
		return err
	}
	if _, err := s.db.Exec("INSERT INTO accounts (name, sort_order) VALUES (?, ?)", name, next); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return err
	}
	return nil
}

func (s *sqliteStore) RenameAccount(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return errors.New("account name must not be empty")
	}
	if oldName == DefaultAccount {
		return ErrDefaultAccount
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM accounts WHERE name = ?", newName).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicateAccount
	}
	res, err := s.db.Exec("UPDATE accounts SET name = ? WHERE name = ?", newName, oldName)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	_, err = s.db.Exec("UPDATE funds SET account = ? WHERE account = ?", newName, oldName)
	return err
}

func (s *sqliteStore) DeleteAccount(name string) error {
	if name == DefaultAccount {
		return ErrDefaultAccount
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM funds WHERE account = ?", name).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrAccountInUse
	}
	res, err := s.db.Exec("DELETE FROM accounts WHERE name = ?", name)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SetAccountOrder(names []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, name := range names {
		if _, err := tx.Exec("UPDATE accounts SET sort_order = ? WHERE name = ?", i+1, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Funds() ([]models.Fund, error) {
	rows, err := s.db.Query("SELECT id, code, name, account FROM funds ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funds []models.Fund
	for rows.Next() {
		var f models.Fund
		if err := rows.Scan(&f.ID, &f.Code, &f.Name, &f.Account); err != nil {
			return nil, err
		}
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

func (s *sqliteStore) Fund(id int64) (models.Fund, error) {
	var f models.Fund
	err := s.db.QueryRow("SELECT id, code, name, account FROM funds WHERE id = ?", id).
		Scan(&f.ID, &f.Code, &f.Name, &f.Account)
	if err == sql.ErrNoRows {
		return models.Fund{}, ErrNotFound
	}
	return f, err
}

func (s *sqliteStore) CreateFund(code, name, account string) (models.Fund, error) {
	if account == "" {
		account = DefaultAccount
	}
	tx, err := s.db.Begin()
	if err != nil {
		return models.Fund{}, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO funds (code, name, account) VALUES (?, ?, ?)", code, name, account)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Fund{}, ErrDuplicateFund
		}
		return models.Fund{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Fund{}, err
	}
	if _, err := tx.Exec("INSERT INTO positions (fund_id, shares, cost_amount) VALUES (?, 0, 0)", id); err != nil {
		return models.Fund{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Fund{}, err
	}
	return models.Fund{ID: id, Code: code, Name: name, Account: account}, nil
}

func (s *sqliteStore) DeleteFund(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM trades WHERE fund_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM positions WHERE fund_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM funds WHERE id = ?", id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadTrades(fundID int64) ([]models.Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, fund_id, kind, trade_time, amount, shares, price, fee, COALESCE(note, ''), status
		FROM trades WHERE fund_id = ? ORDER BY trade_time ASC, id ASC`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.FundID, &t.Kind, &t.TradeTime, &t.Amount, &t.Shares, &t.Price, &t.Fee, &t.Note, &t.Status); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *sqliteStore) SaveTrade(t models.Trade) (models.Trade, error) {
	res, err := s.db.Exec(`
		INSERT INTO trades (fund_id, kind, trade_time, amount, shares, price, fee, note, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.FundID, t.Kind, t.TradeTime, t.Amount, t.Shares, t.Price, t.Fee, t.Note, t.Status)
	if err != nil {
		return models.Trade{}, err
	}
	t.ID, err = res.LastInsertId()
	return t, err
}

// ResolveTrade fixes a pending buy's share count and price. A trade that is
// already settled is left untouched; settlement is terminal.
func (s *sqliteStore) ResolveTrade(tradeID int64, shares, price float64) error {
	res, err := s.db.Exec(`
		UPDATE trades SET shares = ?, price = ?, status = ?
		WHERE id = ? AND status = ?`,
		shares, price, models.TradeSettled, tradeID, models.TradePending)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) LoadPosition(fundID int64) (models.Position, error) {
	var p models.Position
	err := s.db.QueryRow("SELECT shares, cost_amount FROM positions WHERE fund_id = ?", fundID).
		Scan(&p.Shares, &p.CostAmount)
	if err == sql.ErrNoRows {
		return models.Position{}, ErrNotFound
	}
	return p, err
}

func (s *sqliteStore) SavePosition(fundID int64, shares, costAmount float64) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (fund_id, shares, cost_amount, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(fund_id) DO UPDATE SET
			shares = excluded.shares,
			cost_amount = excluded.cost_amount,
			updated_at = CURRENT_TIMESTAMP`,
		fundID, shares, costAmount)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
