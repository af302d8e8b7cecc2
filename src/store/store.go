package store

import "github.com/username/fundfolio/src/models"

// Store is the persistence boundary of the engine. The core components
// never perform their own durable I/O; they call these operations and trust
// the returned records.
type Store interface {
	// Accounts (fund groupings).
	Accounts() ([]models.Account, error)
	CreateAccount(name string) error
	RenameAccount(oldName, newName string) error
	DeleteAccount(name string) error
	SetAccountOrder(names []string) error

	// Funds. CreateFund seeds an empty position; DeleteFund cascades to the
	// fund's trades and position.
	Funds() ([]models.Fund, error)
	Fund(id int64) (models.Fund, error)
	CreateFund(code, name, account string) (models.Fund, error)
	DeleteFund(id int64) error

	// Trades and positions.
	LoadTrades(fundID int64) ([]models.Trade, error)
	SaveTrade(t models.Trade) (models.Trade, error)
	ResolveTrade(tradeID int64, shares, price float64) error
	LoadPosition(fundID int64) (models.Position, error)
	SavePosition(fundID int64, shares, costAmount float64) error
}
