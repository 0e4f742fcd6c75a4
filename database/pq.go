package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/ohmiler/milerdev-sub000/config"
)

// PostgreSQLStore is a thin database/sql connection used by the operational
// CLI tools. It runs read-mostly reconciliation queries against the schema
// that the GORM store owns and migrates.
type PostgreSQLStore struct {
	db *sql.DB
}

func Start() (*PostgreSQLStore, error) {
	getEnv, err := config.Get()

	if err != nil {
		return nil, err
	}

	connectStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv.DB_HOST, getEnv.DB_PORT, getEnv.DB_USER_NAME, getEnv.DB_PASSWORD, getEnv.DB_NAME, getEnv.DB_SSL_MODE)

	db, err := sql.Open("postgres", connectStr)
	if err != nil {
		fmt.Println("Unable to Start PostgresSQL Databse.")
		return nil, err
	}

	log.Println("Successfully connected to PostgresSQL Database.")
	return &PostgreSQLStore{
		db: db,
	}, nil
}

// Init is a no-op: the GORM store owns schema migration.
func (s *PostgreSQLStore) Init() error {
	return nil
}

func (s *PostgreSQLStore) Close() error {
	log.Println("Closing PostgresSQL Database.")
	return s.db.Close()
}

// HealthCheck verifies the database connection is alive
func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

// GetDB returns the raw *sql.DB instance
func (s *PostgreSQLStore) GetDB() interface{} {
	return s.db
}

// PaymentStatusCounts returns payment counts per status since the given time
func (s *PostgreSQLStore) PaymentStatusCounts(since time.Time) (map[string]int64, error) {
	query := `
		SELECT status, COUNT(*) FROM payments
		WHERE created_at >= $1 AND deleted_at IS NULL
		GROUP BY status;
	`
	rows, err := s.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// StuckPayment is one row from the stuck-payment report
type StuckPayment struct {
	ID        string
	Status    string
	Method    string
	Amount    int64
	UserEmail string
	CreatedAt time.Time
}

// ListStuckPayments returns non-terminal payments older than the cutoff,
// oldest first, for the operator report.
func (s *PostgreSQLStore) ListStuckPayments(cutoff time.Time, limit int) ([]StuckPayment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT p.id, p.status, p.method, p.amount, u.email, p.created_at
		FROM payments p
		JOIN users u ON u.id = p.user_id
		WHERE p.status IN ('pending', 'verifying')
		  AND p.created_at < $1
		  AND p.deleted_at IS NULL
		ORDER BY p.created_at ASC
		LIMIT $2;
	`
	rows, err := s.db.Query(query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []StuckPayment{}
	for rows.Next() {
		var p StuckPayment
		if err := rows.Scan(&p.ID, &p.Status, &p.Method, &p.Amount, &p.UserEmail, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CouponRedemptionReport returns per-coupon redemption counts against caps
func (s *PostgreSQLStore) CouponRedemptionReport() (map[string]string, error) {
	query := `
		SELECT code, redeemed_count, COALESCE(max_redemptions, -1)
		FROM coupons
		WHERE deleted_at IS NULL
		ORDER BY code;
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := map[string]string{}
	for rows.Next() {
		var code string
		var redeemed, cap int64
		if err := rows.Scan(&code, &redeemed, &cap); err != nil {
			return nil, err
		}
		if cap < 0 {
			report[code] = fmt.Sprintf("%d/unlimited", redeemed)
		} else {
			report[code] = fmt.Sprintf("%d/%d", redeemed, cap)
		}
	}
	return report, rows.Err()
}
