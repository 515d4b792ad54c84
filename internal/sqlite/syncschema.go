package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/inkwell/internal/errors"
)

// schemaObject is a row of sqlite_schema.
type schemaObject struct {
	Type      string `db:"type"`
	Name      string `db:"name"`
	TableName string `db:"tbl_name"`
	SQL       string `db:"sql"`
}

type schemaObjects map[string]schemaObject

func (objects schemaObjects) ofType(objectType string) []schemaObject {
	var out []schemaObject
	for _, o := range objects {
		if o.Type == objectType {
			out = append(out, o)
		}
	}
	// Map iteration is random; keep the migration log and DDL order stable.
	slices.SortFunc(out, func(a, b schemaObject) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// migrateTo ensures that the db schema matches the target schema definition.
//
// We employ a very simple declarative schema migration that:
//
// 1. Drops deleted tables, indexes and triggers,
// 2. Creates new tables,
// 3. Migrates changed tables using 12-step schema migration https://www.sqlite.org/lang_altertable.html#otheralter,
// 4. Recreates the indexes and triggers that are missing afterwards.
//
// The target schema is materialised in a throwaway in-memory database and compared object by object with the
// current sqlite_schema. Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrateTo(ctx context.Context, schema string) (err error) {
	target, targetColumns, err := db.materializeSchema(ctx, schema)
	if err != nil {
		return errors.Wrap(err, "materialize target schema")
	}

	// Step 1: Disable foreign key validation temporarily. It cannot be toggled inside a transaction, and the
	// read-write pool has a single connection, so the pragma applies to the transaction below.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	// Step 12: Re-enable foreign key validation.
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			fkErr = errors.Wrap(fkErr, "re-enable foreign key validation")
			db.logger.LogAttrs(ctx, slog.LevelError, "foreign keys left disabled", errors.SlogError(fkErr))
			err = errors.Join(err, fkErr)
		}
	}()

	// Step 2: Start transaction.
	var tx *sqlx.Tx
	if tx, err = db.ReadWrite.BeginTxx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction", errors.SlogError(rbErr))
		}
	}()

	// Step 3: Remember schema.
	var current schemaObjects
	if current, err = loadSchemaObjects(ctx, tx); err != nil {
		return errors.Wrap(err, "load current schema")
	}

	if err = db.dropStaleObjects(ctx, tx, current, target); err != nil {
		return errors.Wrap(err, "drop stale objects")
	}

	// Step 4-7: migrate tables.
	if err = db.migrateTables(ctx, tx, current, target, targetColumns); err != nil {
		return errors.Wrap(err, "migrate tables")
	}

	// Step 8: Recreate indexes and triggers associated with table if needed.
	if err = db.createMissingObjects(ctx, tx, target); err != nil {
		return errors.Wrap(err, "create indexes and triggers")
	}

	// Step 9: There are no views in the schema.
	// Step 10: Check foreign key constraints.
	if err = checkForeignKeys(ctx, tx); err != nil {
		return errors.Wrap(err, "foreign key check")
	}

	// Step 11: Commit transaction from step 2.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	// Step 12: is in defer above.

	return nil
}

// materializeSchema executes schema against a private in-memory database and returns its objects and table columns.
func (db *Database) materializeSchema(ctx context.Context, schema string) (schemaObjects, map[string][]string, error) {
	targetDB, err := sqlx.Open(driverName, ":memory:")
	if err != nil {
		return nil, nil, errors.Wrap(err, "open schema target database")
	}
	// Each connection to :memory: is a separate database.
	targetDB.SetMaxOpenConns(1)
	defer func() {
		if closeErr := targetDB.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target database",
				errors.SlogError(closeErr))
		}
	}()

	if strings.TrimSpace(schema) != "" {
		if _, err = targetDB.ExecContext(ctx, schema); err != nil {
			return nil, nil, errors.Wrap(err, "apply schema to target database")
		}
	}

	objects, err := loadSchemaObjects(ctx, targetDB)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load target schema")
	}
	columns := map[string][]string{}
	for _, table := range objects.ofType("table") {
		if columns[table.Name], err = tableColumns(ctx, targetDB, table.Name); err != nil {
			return nil, nil, errors.Wrap(err, "target table columns", slog.String("table", table.Name))
		}
	}
	return objects, columns, nil
}

func loadSchemaObjects(ctx context.Context, q sqlx.QueryerContext) (schemaObjects, error) {
	var rows []schemaObject
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT type, name, tbl_name, sql
FROM sqlite_schema
WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'`); err != nil {
		return nil, errors.Wrap(err, "select sqlite_schema")
	}
	objects := make(schemaObjects, len(rows))
	for _, row := range rows {
		objects[row.Type+":"+row.Name] = row
	}
	return objects, nil
}

func tableColumns(ctx context.Context, q sqlx.QueryerContext, table string) ([]string, error) {
	var columns []string
	if err := sqlx.SelectContext(ctx, q, &columns, "SELECT name FROM pragma_table_info(?)", table); err != nil {
		return nil, errors.Wrap(err, "select table info")
	}
	return columns, nil
}

// dropStaleObjects drops indexes and triggers that were removed or changed, and tables that were removed.
func (db *Database) dropStaleObjects(ctx context.Context, tx *sqlx.Tx, current, target schemaObjects) error {
	for _, objectType := range []string{"trigger", "index", "table"} {
		for _, object := range current.ofType(objectType) {
			wanted, ok := target[objectType+":"+object.Name]
			if ok && (objectType == "table" || wanted.SQL == object.SQL) {
				continue
			}
			db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping "+objectType, slog.String("name", object.Name))
			stmt := fmt.Sprintf("DROP %s IF EXISTS %s;", strings.ToUpper(objectType), quoteIdentifier(object.Name))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Wrap(err, "drop object", slog.String("query", stmt))
			}
		}
	}
	return nil
}

// migrateTables creates new tables and rebuilds tables whose definition changed.
func (db *Database) migrateTables(
	ctx context.Context,
	tx *sqlx.Tx,
	current, target schemaObjects,
	targetColumns map[string][]string,
) error {
	for _, table := range target.ofType("table") {
		existing, ok := current["table:"+table.Name]
		if !ok {
			db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", table.SQL))
			if _, err := tx.ExecContext(ctx, table.SQL); err != nil {
				return errors.Wrap(err, "create table", slog.String("table", table.Name))
			}
			continue
		}
		if existing.SQL == table.SQL {
			continue
		}
		if err := db.rebuildTable(ctx, tx, existing, table, targetColumns[table.Name]); err != nil {
			return errors.Wrap(err, "rebuild table", slog.String("table", table.Name))
		}
	}
	return nil
}

func (db *Database) rebuildTable(
	ctx context.Context,
	tx *sqlx.Tx,
	existing, table schemaObject,
	newColumns []string,
) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
		slog.String("table", table.Name),
		slog.String("current_sql", existing.SQL),
		slog.String("new_sql", table.SQL))

	// Step 4: Create tables according to new schema on temporary names.
	tempName := table.Name + "_migration_temp"
	tempNameSQL := strings.Replace(table.SQL, table.Name, tempName, 1)
	if _, err := tx.ExecContext(ctx, tempNameSQL); err != nil {
		return errors.Wrap(err, "create new table to temporary name", slog.String("query", tempNameSQL))
	}

	// Step 5: Copy common columns between tables.
	oldColumns, err := tableColumns(ctx, tx, table.Name)
	if err != nil {
		return errors.Wrap(err, "current table columns")
	}
	var common []string
	for _, column := range newColumns {
		if slices.Contains(oldColumns, column) {
			common = append(common, quoteIdentifier(column))
		}
	}
	if len(common) > 0 {
		columnList := strings.Join(common, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s;",
			quoteIdentifier(tempName), columnList, columnList, quoteIdentifier(table.Name))
		db.logger.LogAttrs(ctx, slog.LevelInfo, "copying data", slog.String("query", copySQL))
		if _, err = tx.ExecContext(ctx, copySQL); err != nil {
			return errors.Wrap(err, "copy data")
		}
	}

	// Step 6: Drop the old table.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s;", quoteIdentifier(table.Name))); err != nil {
		return errors.Wrap(err, "drop old table")
	}

	// Step 7: Rename new table to old table's name.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s;",
		quoteIdentifier(tempName), quoteIdentifier(table.Name))); err != nil {
		return errors.Wrap(err, "rename new table")
	}
	return nil
}

// createMissingObjects creates target indexes and triggers that are absent after the table migration. Rebuilt tables
// lose their indexes and triggers, so the current schema is reloaded first.
func (db *Database) createMissingObjects(ctx context.Context, tx *sqlx.Tx, target schemaObjects) error {
	current, err := loadSchemaObjects(ctx, tx)
	if err != nil {
		return errors.Wrap(err, "reload schema")
	}
	for _, objectType := range []string{"index", "trigger"} {
		for _, object := range target.ofType(objectType) {
			if _, ok := current[objectType+":"+object.Name]; ok {
				continue
			}
			db.logger.LogAttrs(ctx, slog.LevelInfo, "creating "+objectType, slog.String("query", object.SQL))
			if _, err = tx.ExecContext(ctx, object.SQL); err != nil {
				return errors.Wrap(err, "create object", slog.String("name", object.Name))
			}
		}
	}
	return nil
}

func checkForeignKeys(ctx context.Context, tx *sqlx.Tx) error {
	var violations int
	if err := tx.GetContext(ctx, &violations, "SELECT COUNT(*) FROM pragma_foreign_key_check"); err != nil {
		return errors.Wrap(err, "query foreign key check")
	}
	if violations > 0 {
		return errors.New("foreign key violations after migration", slog.Int("violations", violations))
	}
	return nil
}

// quoteIdentifier wraps name in double quotes to handle names that are SQLite keywords.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
