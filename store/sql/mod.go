// Package sql implements a bucket stored in a MySQL table.
package sql

import (
	"database/sql"
	"strings"

	// Registers the mysql driver.
	_ "github.com/go-sql-driver/mysql"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

// TableName is the name of the table holding the blobs.
const TableName = "sharefs_blobs"

const (
	createQuery = "CREATE TABLE IF NOT EXISTS " + TableName + " (" +
		"k VARCHAR(512) NOT NULL PRIMARY KEY, " +
		"v LONGBLOB NOT NULL" +
		") CHARACTER SET utf8mb4 COLLATE utf8mb4_bin"

	getQuery    = "SELECT v FROM " + TableName + " WHERE k = ?"
	setQuery    = "INSERT INTO " + TableName + " (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)"
	existsQuery = "SELECT COUNT(*) FROM " + TableName + " WHERE k = ?"
	listQuery   = "SELECT k FROM " + TableName + " WHERE k LIKE ? ORDER BY k"
	deleteQuery = "DELETE FROM " + TableName + " WHERE k = ?"
)

// Bucket is a bucket stored in a SQL table.
//
// - implements store.Bucket
type Bucket struct {
	db *sql.DB
}

// Open connects to the database described by the configuration and returns
// the bucket.
func Open(config *Config) (*Bucket, error) {
	dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Errorf("failed to open database: %v", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to connect to database: %v", err)
	}

	bucket, err := NewBucket(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return bucket, nil
}

// OpenFromFile parses the configuration file and opens the bucket.
func OpenFromFile(path string) (*Bucket, error) {
	config, err := ParseConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	return Open(config)
}

// NewBucket creates the table if necessary and returns the bucket.
func NewBucket(db *sql.DB) (*Bucket, error) {
	_, err := db.Exec(createQuery)
	if err != nil {
		return nil, xerrors.Errorf("failed to create table: %v", err)
	}

	return &Bucket{db: db}, nil
}

// Close closes the connection to the database.
func (b *Bucket) Close() error {
	return b.db.Close()
}

// Get implements store.Bucket.
func (b *Bucket) Get(key string) ([]byte, error) {
	var data []byte

	err := b.db.QueryRow(getQuery, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, xerrors.Errorf("key '%s': %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to query: %v", err)
	}

	if data == nil {
		data = []byte{}
	}

	return data, nil
}

// Set implements store.Bucket.
func (b *Bucket) Set(key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}

	_, err := b.db.Exec(setQuery, key, data)
	if err != nil {
		return xerrors.Errorf("failed to upsert: %v", err)
	}

	return nil
}

// Exists implements store.Bucket.
func (b *Bucket) Exists(key string) (bool, error) {
	var count int

	err := b.db.QueryRow(existsQuery, key).Scan(&count)
	if err != nil {
		return false, xerrors.Errorf("failed to query: %v", err)
	}

	return count > 0, nil
}

// List implements store.Bucket. Keys are sorted.
func (b *Bucket) List(prefix string) ([]string, error) {
	rows, err := b.db.Query(listQuery, escapeLike(prefix)+"%")
	if err != nil {
		return nil, xerrors.Errorf("failed to query: %v", err)
	}

	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string

		err = rows.Scan(&key)
		if err != nil {
			return nil, xerrors.Errorf("failed to scan: %v", err)
		}

		keys = append(keys, strings.TrimPrefix(key, prefix))
	}

	err = rows.Err()
	if err != nil {
		return nil, xerrors.Errorf("failed to read rows: %v", err)
	}

	return keys, nil
}

// Delete implements store.Bucket.
func (b *Bucket) Delete(key string) error {
	_, err := b.db.Exec(deleteQuery, key)
	if err != nil {
		return xerrors.Errorf("failed to delete: %v", err)
	}

	return nil
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes the wildcards of a LIKE pattern.
func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}
