package sqlstore

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
)

const documentsTable = "AD_Documents"

// StoreAPI is the part of the plugin API store service used to reach the server database.
type StoreAPI interface {
	GetMasterDB() (*sql.DB, error)
	DriverName() string
}

// SQLStore keeps every collection as one row of AD_Documents in the Mattermost database.
type SQLStore struct {
	log     bot.Logger
	db      *sqlx.DB
	builder sq.StatementBuilderType
}

// New connects to the master database and creates the documents table if needed.
func New(api StoreAPI, logger bot.Logger) (*SQLStore, error) {
	origDB, err := api.GetMasterDB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get master database")
	}

	db := sqlx.NewDb(origDB, api.DriverName())
	return newSQLStore(db, logger)
}

func newSQLStore(db *sqlx.DB, logger bot.Logger) (*SQLStore, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if db.DriverName() == model.DatabaseDriverPostgres {
		builder = builder.PlaceholderFormat(sq.Dollar)
	}

	store := &SQLStore{
		log:     logger,
		db:      db,
		builder: builder,
	}

	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) migrate() error {
	docType := "TEXT"
	if s.db.DriverName() == model.DatabaseDriverMysql {
		docType = "MEDIUMTEXT"
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + documentsTable + ` (
		Name VARCHAR(255) NOT NULL,
		Document ` + docType + ` NOT NULL,
		UpdateAt BIGINT NOT NULL,
		PRIMARY KEY (Name)
	)`); err != nil {
		return errors.Wrapf(err, "failed to create table %s", documentsTable)
	}
	return nil
}

func (s *SQLStore) EnsureExists(name string) error {
	if err := app.ValidateName(name); err != nil {
		return err
	}

	exists, err := s.exists(name)
	if err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "create", Err: err}
	}
	if exists {
		return nil
	}

	_, err = s.execBuilder(s.db, s.builder.
		Insert(documentsTable).
		Columns("Name", "Document", "UpdateAt").
		Values(name, app.EmptyDocument, model.GetMillis()))
	if err == nil {
		return nil
	}

	// Another node may have inserted the row in between.
	if exists, existsErr := s.exists(name); existsErr == nil && exists {
		return nil
	}
	return &app.ResourceAccessError{Collection: name, Op: "create", Err: err}
}

func (s *SQLStore) Read(name string) ([]byte, error) {
	if err := app.ValidateName(name); err != nil {
		return nil, err
	}

	var doc string
	err := s.getBuilder(s.db, &doc, s.builder.
		Select("Document").
		From(documentsTable).
		Where(sq.Eq{"Name": name}))
	if err == sql.ErrNoRows {
		if err := s.EnsureExists(name); err != nil {
			return nil, err
		}
		return []byte(app.EmptyDocument), nil
	}
	if err != nil {
		return nil, &app.ResourceAccessError{Collection: name, Op: "read", Err: err}
	}
	return []byte(doc), nil
}

// Write replaces the row in a single transaction.
func (s *SQLStore) Write(name string, data []byte) error {
	if err := app.ValidateName(name); err != nil {
		return err
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: errors.Wrap(err, "could not begin transaction")}
	}
	defer s.finalizeTransaction(tx)

	if _, err := s.execBuilder(tx, s.builder.
		Delete(documentsTable).
		Where(sq.Eq{"Name": name})); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}

	if _, err := s.execBuilder(tx, s.builder.
		Insert(documentsTable).
		Columns("Name", "Document", "UpdateAt").
		Values(name, string(data), model.GetMillis())); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &app.ResourceAccessError{Collection: name, Op: "write", Err: errors.Wrap(err, "could not commit transaction")}
	}
	return nil
}

func (s *SQLStore) exists(name string) (bool, error) {
	var count int
	if err := s.getBuilder(s.db, &count, s.builder.
		Select("COUNT(*)").
		From(documentsTable).
		Where(sq.Eq{"Name": name})); err != nil {
		return false, err
	}
	return count > 0, nil
}

type builder interface {
	ToSql() (string, []interface{}, error)
}

func (s *SQLStore) getBuilder(q sqlx.Queryer, dest interface{}, b builder) error {
	sqlString, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build sql")
	}

	return sqlx.Get(q, dest, sqlString, args...)
}

func (s *SQLStore) execBuilder(e sqlx.Execer, b builder) (sql.Result, error) {
	sqlString, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build sql")
	}

	return e.Exec(sqlString, args...)
}

func (s *SQLStore) finalizeTransaction(tx *sqlx.Tx) {
	// Rollback returns sql.ErrTxDone if the transaction was already closed.
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		s.log.Errorf("Failed to rollback transaction; err: %v", err)
	}
}
