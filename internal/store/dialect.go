package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Supported dialect names.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Statements is the full set of SQL text used by the data access layer.
type Statements struct {
	InsertActivity        string
	FindActivity          string
	ActivitiesByType      string
	DeletePlannedInRange  string
	MostRecentPlanned     string
	MostRecentEntry       string
	SimilarInRange        string
	AllActivities         string
	InsertProfileIfAbsent string
	ProfilesByName        string
	ProfileByUserAndName  string
	ProfileByRow          string
	ProfilesByUser        string
}

// Dialect binds a driver to its statement text and schema.
type Dialect struct {
	Name       string
	DriverName string
	// InsertReturnsID is set when InsertActivity yields the new row id as a result row
	// instead of through sql.Result.LastInsertId.
	InsertReturnsID bool
	Statements      Statements
	Migrations      []Migration
}

// SQLite statement text is kept verbatim; other components depend on it.
var sqliteStatements = Statements{
	InsertActivity:        "insert into ActivityTable (activity, date, amount, userid) values (?,?,?,?)",
	FindActivity:          "select * from ActivityTable where activity = ? and date = ? and userid = ?",
	ActivitiesByType:      "select * from ActivityTable where activity = ? and userid = ?",
	DeletePlannedInRange:  "DELETE FROM ActivityTable WHERE userid = ? and amount < 0 and date BETWEEN ? and ?",
	MostRecentPlanned:     "SELECT rowIdNum, activity, MAX(date), amount FROM ActivityTable WHERE userid = ? and amount <= 0 and date BETWEEN ? and ?",
	MostRecentEntry:       "SELECT MAX(rowIdNum), activity, date, amount FROM ActivityTable WHERE userid = ?",
	SimilarInRange:        "SELECT * FROM ActivityTable WHERE userid = ? and activity = ? and date BETWEEN ? and ? ORDER BY date ASC",
	AllActivities:         "select * from ActivityTable",
	InsertProfileIfAbsent: "insert into Profile (userid, firstname) values (?,?) on conflict (userid, firstname) do nothing",
	ProfilesByName:        "select * from Profile where firstname = ?",
	ProfileByUserAndName:  "select * from Profile where userid = ? and firstname = ?",
	ProfileByRow:          "select * from Profile where rowIDNum = ?",
	ProfilesByUser:        "select * from Profile where userid = ?",
}

// Postgres folds unquoted identifiers to lower case and has no bare-column
// aggregates, so result columns are aliased to the SQLite names.
const (
	pgActivityColumns = `rowIdNum AS "rowIdNum", activity, date, amount, userid`
	pgProfileColumns  = `rowIdNum AS "rowIdNum", userid, firstname AS "firstName"`
)

var postgresStatements = Statements{
	InsertActivity:        "INSERT INTO ActivityTable (activity, date, amount, userid) VALUES (?,?,?,?) RETURNING rowIdNum",
	FindActivity:          "SELECT " + pgActivityColumns + " FROM ActivityTable WHERE activity = ? AND date = ? AND userid = ?",
	ActivitiesByType:      "SELECT " + pgActivityColumns + " FROM ActivityTable WHERE activity = ? AND userid = ?",
	DeletePlannedInRange:  "DELETE FROM ActivityTable WHERE userid = ? AND amount < 0 AND date BETWEEN ? AND ?",
	MostRecentPlanned:     `SELECT rowIdNum AS "rowIdNum", activity, date AS "MAX(date)", amount FROM ActivityTable WHERE userid = ? AND amount <= 0 AND date BETWEEN ? AND ? ORDER BY date DESC, rowIdNum ASC LIMIT 1`,
	MostRecentEntry:       `SELECT rowIdNum AS "MAX(rowIdNum)", activity, date, amount FROM ActivityTable WHERE userid = ? ORDER BY rowIdNum DESC LIMIT 1`,
	SimilarInRange:        "SELECT " + pgActivityColumns + " FROM ActivityTable WHERE userid = ? AND activity = ? AND date BETWEEN ? AND ? ORDER BY date ASC, rowIdNum ASC",
	AllActivities:         "SELECT " + pgActivityColumns + " FROM ActivityTable ORDER BY rowIdNum",
	InsertProfileIfAbsent: "INSERT INTO Profile (userid, firstname) VALUES (?,?) ON CONFLICT (userid, firstname) DO NOTHING",
	ProfilesByName:        "SELECT " + pgProfileColumns + " FROM Profile WHERE firstname = ? ORDER BY rowIdNum",
	ProfileByUserAndName:  "SELECT " + pgProfileColumns + " FROM Profile WHERE userid = ? AND firstname = ?",
	ProfileByRow:          "SELECT " + pgProfileColumns + " FROM Profile WHERE rowIdNum = ?",
	ProfilesByUser:        "SELECT " + pgProfileColumns + " FROM Profile WHERE userid = ? ORDER BY rowIdNum",
}

// SQLite is the default dialect backed by modernc.org/sqlite.
var SQLite = Dialect{
	Name:       DialectSQLite,
	DriverName: "sqlite",
	Statements: sqliteStatements,
	Migrations: sqliteMigrations,
}

// Postgres is backed by the pgx database/sql driver.
var Postgres = Dialect{
	Name:            DialectPostgres,
	DriverName:      "pgx",
	InsertReturnsID: true,
	Statements:      postgresStatements,
	Migrations:      postgresMigrations,
}

// LookupDialect resolves a configured driver name.
func LookupDialect(name string) (Dialect, error) {
	switch name {
	case "", DialectSQLite, "sqlite3":
		return SQLite, nil
	case DialectPostgres, "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}
