package catalog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "modernc.org/sqlite"

	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/rsakey"
	"github.com/sensiblebit/bootkit/x509cert"
)

// sqliteCertRow maps a row in the certificates table.
type sqliteCertRow struct {
	Fingerprint  string         `db:"fingerprint"`
	Role         string         `db:"role"`
	Subject      string         `db:"subject"`
	Issuer       string         `db:"issuer"`
	SerialNumber string         `db:"serial_number"`
	NotBefore    time.Time      `db:"not_before"`
	NotAfter     time.Time      `db:"not_after"`
	KeyType      string         `db:"key_type"`
	Source       string         `db:"source"`
	MetadataJSON types.JSONText `db:"metadata"`
	DER          []byte         `db:"der"`
}

// sqliteMessageRow maps a row in the messages table.
type sqliteMessageRow struct {
	Fingerprint string         `db:"fingerprint"`
	Source      string         `db:"source"`
	DataType    string         `db:"data_type"`
	Detached    bool           `db:"detached"`
	SignersJSON types.JSONText `db:"signers"`
	DER         []byte         `db:"der"`
}

// sqliteKeyRow maps a row in the keys table.
type sqliteKeyRow struct {
	Fingerprint    string `db:"fingerprint"`
	Bits           int    `db:"bits"`
	SSHFingerprint string `db:"ssh_fingerprint"`
	Source         string `db:"source"`
	DER            []byte `db:"der"`
}

// certMetadata is stored as JSON alongside each certificate for ad-hoc
// queries; it is not read back.
type certMetadata struct {
	Version            int    `json:"version"`
	SignatureAlgorithm string `json:"signature_algorithm"`
	SubjectKeyID       string `json:"subject_key_id,omitempty"`
	AuthorityKeyID     string `json:"authority_key_id,omitempty"`
	IsCA               bool   `json:"is_ca"`
}

// openMemDB creates an in-memory SQLite database with the catalog schema.
func openMemDB() (*sqlx.DB, error) {
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

// initSQLiteSchema creates the catalog tables. Column order matters: loading
// copies rows with SELECT *.
func initSQLiteSchema(db *sqlx.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"certificates table", `
			CREATE TABLE IF NOT EXISTS certificates (
				fingerprint   text PRIMARY KEY,
				role          text NOT NULL,
				subject       text,
				issuer        text,
				serial_number text NOT NULL,
				not_before    timestamp,
				not_after     timestamp,
				key_type      text NOT NULL,
				source        text NOT NULL,
				metadata      text,
				der           blob NOT NULL
			);`},
		{"subject index", `
			CREATE INDEX IF NOT EXISTS idx_certificates_subject ON certificates (subject);`},
		{"messages table", `
			CREATE TABLE IF NOT EXISTS messages (
				fingerprint text PRIMARY KEY,
				source      text NOT NULL,
				data_type   text,
				detached    integer NOT NULL,
				signers     text,
				der         blob NOT NULL
			);`},
		{"keys table", `
			CREATE TABLE IF NOT EXISTS keys (
				fingerprint     text PRIMARY KEY,
				bits            integer,
				ssh_fingerprint text,
				source          text NOT NULL,
				der             blob NOT NULL
			);`},
		{"failures table", `
			CREATE TABLE IF NOT EXISTS failures (
				source text PRIMARY KEY,
				kind   text NOT NULL,
				error  text NOT NULL
			);`},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}
	return nil
}

// LoadFromSQLite opens a SQLite database file and copies its records into
// the given MemStore. Stored DER is decoded again, so rows that no longer
// pass the decoders are skipped with a warning.
func LoadFromSQLite(store *MemStore, dbPath string) error {
	db, err := openMemDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("ATTACH DATABASE ? AS diskdb", dbPath); err != nil {
		return fmt.Errorf("attaching database %s: %w", dbPath, err)
	}
	defer func() {
		if _, detachErr := db.Exec("DETACH DATABASE diskdb"); detachErr != nil {
			slog.Warn("detaching database", "path", dbPath, "error", detachErr)
		}
	}()

	for _, table := range []string{"certificates", "messages", "keys", "failures"} {
		if _, err := db.Exec("INSERT OR IGNORE INTO " + table + " SELECT * FROM diskdb." + table); err != nil {
			return fmt.Errorf("loading %s from %s: %w", table, dbPath, err)
		}
	}

	var certs []sqliteCertRow
	if err := db.Select(&certs, "SELECT * FROM certificates"); err != nil {
		return fmt.Errorf("reading certificates: %w", err)
	}
	for _, c := range certs {
		cert, err := x509cert.ParseCertificate(c.DER)
		if err != nil {
			slog.Warn("skipping stored certificate", "fingerprint", c.Fingerprint, "error", err)
			continue
		}
		if err := store.HandleCertificate(cert, c.Source); err != nil {
			slog.Warn("loading cert from DB", "fingerprint", c.Fingerprint, "error", err)
		}
	}

	var msgs []sqliteMessageRow
	if err := db.Select(&msgs, "SELECT * FROM messages"); err != nil {
		return fmt.Errorf("reading messages: %w", err)
	}
	for _, m := range msgs {
		msg, err := pkcs7.ParseMessage(m.DER)
		if err != nil {
			slog.Warn("skipping stored message", "fingerprint", m.Fingerprint, "error", err)
			continue
		}
		if err := store.HandleMessage(msg, m.DER, m.Source); err != nil {
			slog.Warn("loading message from DB", "fingerprint", m.Fingerprint, "error", err)
		}
	}

	var keys []sqliteKeyRow
	if err := db.Select(&keys, "SELECT * FROM keys"); err != nil {
		return fmt.Errorf("reading keys: %w", err)
	}
	for _, k := range keys {
		key, err := rsakey.ParsePublicKey(k.DER)
		if err != nil {
			slog.Warn("skipping stored key", "fingerprint", k.Fingerprint, "error", err)
			continue
		}
		if err := store.HandleKey(key, k.DER, k.Source); err != nil {
			slog.Warn("loading key from DB", "fingerprint", k.Fingerprint, "error", err)
		}
	}

	var failures []FailureRecord
	if err := db.Select(&failures, "SELECT * FROM failures"); err != nil {
		return fmt.Errorf("reading failures: %w", err)
	}
	for i := range failures {
		rec := failures[i]
		store.failures[rec.Source] = &rec
	}

	slog.Info("loaded database into store", "path", dbPath)
	return nil
}

// SaveToSQLite writes the contents of a MemStore to a SQLite database file.
func SaveToSQLite(store *MemStore, dbPath string) error {
	db, err := openMemDB()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	for _, rec := range store.AllCerts() {
		meta, _ := json.Marshal(certMetadata{
			Version:            rec.Cert.Version,
			SignatureAlgorithm: rec.Cert.Signature.Algorithm.String(),
			SubjectKeyID:       hex.EncodeToString(rec.Cert.SubjectKeyID),
			AuthorityKeyID:     hex.EncodeToString(rec.Cert.AuthorityKeyID),
			IsCA:               rec.Cert.IsCA,
		})
		row := sqliteCertRow{
			Fingerprint:  rec.Fingerprint,
			Role:         rec.Role,
			Subject:      rec.Cert.Subject.String(),
			Issuer:       rec.Cert.Issuer.String(),
			SerialNumber: hex.EncodeToString(rec.Cert.SerialNumber),
			NotBefore:    rec.NotBefore,
			NotAfter:     rec.NotAfter,
			KeyType:      rec.KeyType,
			Source:       rec.Source,
			MetadataJSON: types.JSONText(meta),
			DER:          rec.Cert.Raw,
		}
		if _, err := db.NamedExec(`
			INSERT OR IGNORE INTO certificates (fingerprint, role, subject, issuer, serial_number, not_before, not_after, key_type, source, metadata, der)
			VALUES (:fingerprint, :role, :subject, :issuer, :serial_number, :not_before, :not_after, :key_type, :source, :metadata, :der)
		`, row); err != nil {
			slog.Warn("saving cert to DB", "fingerprint", rec.Fingerprint, "error", err)
		}
	}

	for _, rec := range store.AllMessages() {
		signers, _ := json.Marshal(rec.Signers())
		dataType := rec.Message.DataType.String()
		if rec.Message.DataTypeOID != "" && dataType == "unknown" {
			dataType = rec.Message.DataTypeOID
		}
		row := sqliteMessageRow{
			Fingerprint: rec.Fingerprint,
			Source:      rec.Source,
			DataType:    dataType,
			Detached:    rec.Message.Detached(),
			SignersJSON: types.JSONText(signers),
			DER:         rec.Raw,
		}
		if _, err := db.NamedExec(`
			INSERT OR IGNORE INTO messages (fingerprint, source, data_type, detached, signers, der)
			VALUES (:fingerprint, :source, :data_type, :detached, :signers, :der)
		`, row); err != nil {
			slog.Warn("saving message to DB", "fingerprint", rec.Fingerprint, "error", err)
		}
	}

	for _, rec := range store.AllKeys() {
		row := sqliteKeyRow{
			Fingerprint:    rec.Fingerprint,
			Bits:           rec.Key.Bits(),
			SSHFingerprint: rec.SSHFingerprint,
			Source:         rec.Source,
			DER:            rec.Raw,
		}
		if _, err := db.NamedExec(`
			INSERT OR IGNORE INTO keys (fingerprint, bits, ssh_fingerprint, source, der)
			VALUES (:fingerprint, :bits, :ssh_fingerprint, :source, :der)
		`, row); err != nil {
			slog.Warn("saving key to DB", "fingerprint", rec.Fingerprint, "error", err)
		}
	}

	for _, rec := range store.Failures() {
		if _, err := db.NamedExec(`
			INSERT OR IGNORE INTO failures (source, kind, error) VALUES (:source, :kind, :error)
		`, rec); err != nil {
			slog.Warn("saving failure to DB", "source", rec.Source, "error", err)
		}
	}

	// VACUUM INTO produces a clean, compact copy
	if _, err := db.Exec("VACUUM INTO ?", dbPath); err != nil {
		return fmt.Errorf("saving database to %s: %w", dbPath, err)
	}

	slog.Info("database saved", "path", dbPath)
	return nil
}
