package records

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/pkg/logger"

	_ "github.com/lib/pq"                  // PostgreSQL driver
	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver
)

// Supported database/sql driver names.
const (
	DriverPostgres  = "postgres"
	DriverSnowflake = "snowflake"
)

// SQLTables names the three source tables.
type SQLTables struct {
	Customers    string
	Transactions string
	Events       string
}

// DefaultSQLTables are the table names used when none are configured.
var DefaultSQLTables = SQLTables{
	Customers:    "customers",
	Transactions: "transactions",
	Events:       "events",
}

// OpenSQL opens a pooled connection for a supported driver.
func OpenSQL(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSnowflake:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// SQLLoader reads the collections from a warehouse or operational database.
type SQLLoader struct {
	db     *sql.DB
	tables SQLTables
}

// NewSQLLoader uses DefaultSQLTables for any empty table name.
func NewSQLLoader(db *sql.DB, tables SQLTables) *SQLLoader {
	if tables.Customers == "" {
		tables.Customers = DefaultSQLTables.Customers
	}
	if tables.Transactions == "" {
		tables.Transactions = DefaultSQLTables.Transactions
	}
	if tables.Events == "" {
		tables.Events = DefaultSQLTables.Events
	}
	return &SQLLoader{db: db, tables: tables}
}

// Load queries all three tables.
func (l *SQLLoader) Load(ctx context.Context) (*Store, error) {
	customers, err := l.loadCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: customers: %v", ErrDataUnavailable, err)
	}
	transactions, err := l.loadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: transactions: %v", ErrDataUnavailable, err)
	}
	events, err := l.loadEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: events: %v", ErrDataUnavailable, err)
	}

	logger.Info("records loaded from database",
		"customers", len(customers),
		"transactions", len(transactions),
		"events", len(events))
	return New(customers, transactions, events), nil
}

func (l *SQLLoader) loadCustomers(ctx context.Context) ([]domain.CustomerProfile, error) {
	query := fmt.Sprintf(`SELECT customer_id, first_name, last_name, email, phone,
		COALESCE(email_hash, ''), COALESCE(phone_hash, ''), city, COALESCE(district, ''),
		age, gender, registration_date, has_app, email_opted_in, sms_opted_in,
		loyalty_card, segment, COALESCE(avg_monthly_visits, 0), COALESCE(prefers_premium_fuel, false)
		FROM %s ORDER BY customer_id`, l.tables.Customers)

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying customers: %w", err)
	}
	defer rows.Close()

	var out []domain.CustomerProfile
	for rows.Next() {
		var c domain.CustomerProfile
		var tier string
		if err := rows.Scan(&c.CustomerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
			&c.EmailHash, &c.PhoneHash, &c.City, &c.District,
			&c.Age, &c.Gender, &c.RegistrationDate, &c.HasApp, &c.EmailOptedIn, &c.SMSOptedIn,
			&c.HasLoyaltyCard, &tier, &c.AvgMonthlyVisits, &c.PrefersPremiumFuel); err != nil {
			return nil, fmt.Errorf("scanning customer: %w", err)
		}
		c.Segment = domain.Tier(tier)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (l *SQLLoader) loadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT transaction_id, customer_id, timestamp, COALESCE(station_id, ''),
		COALESCE(city, ''), COALESCE(fuel_type, ''), COALESCE(fuel_liters, 0), COALESCE(fuel_amount, 0),
		is_premium_fuel, market_amount, total_amount, COALESCE(payment_method, '')
		FROM %s ORDER BY timestamp`, l.tables.Transactions)

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.TransactionID, &t.CustomerID, &t.Timestamp, &t.StationID,
			&t.City, &t.FuelType, &t.FuelLiters, &t.FuelAmount,
			&t.IsPremiumFuel, &t.MarketAmount, &t.TotalAmount, &t.PaymentMethod); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *SQLLoader) loadEvents(ctx context.Context) ([]domain.Event, error) {
	query := fmt.Sprintf(`SELECT event_id, customer_id, timestamp, event_type, COALESCE(channel, ''),
		COALESCE(device, '')
		FROM %s ORDER BY timestamp`, l.tables.Events)

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.EventID, &e.CustomerID, &e.Timestamp, &e.EventType, &e.Channel, &e.Device); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
