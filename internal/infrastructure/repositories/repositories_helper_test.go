package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createSaleTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE sales (
		id TEXT PRIMARY KEY,
		gateway_payment_id TEXT UNIQUE,
		customer_email TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT,
		customer_cpf TEXT,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT,
		payment_details TEXT,
		paid_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE checkout_attempts (
		id TEXT PRIMARY KEY,
		customer_email TEXT NOT NULL,
		customer_phone TEXT,
		customer_cpf TEXT,
		created_at DATETIME
	);`)
}

func createWebhookLogTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE webhook_logs (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		gateway_event_id TEXT,
		payment_id TEXT,
		raw_payload TEXT NOT NULL,
		signature_valid BOOLEAN NOT NULL DEFAULT 1,
		processed BOOLEAN NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME,
		processed_at DATETIME
	);`)
}

func createProvisioningQueueTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE provisioning_queue (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		stage TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		account_user_id TEXT,
		account_login TEXT,
		password_sealed TEXT,
		password_hash TEXT,
		email_message_id TEXT,
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}
