package dbclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Dump 将实例中所有数据库逻辑转储到dumpPath目录
func (c *Client) Dump(ctx context.Context, socketPath, dumpPath string) error {
	if err := os.MkdirAll(dumpPath, 0700); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}

	conn, err := c.Connect(ctx, socketPath, c.opts.Database)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	manifest := &Manifest{Format: dumpFormat, CreatedAt: time.Now().UTC()}
	if err := conn.QueryRow(ctx, "SHOW server_version").Scan(&manifest.ServerVersion); err != nil {
		return fmt.Errorf("querying server version: %w", err)
	}

	names, err := listDatabases(ctx, conn)
	if err != nil {
		return err
	}

	for i, name := range names {
		db := Database{Name: name, Dir: fmt.Sprintf("db%03d", i)}
		if err := c.dumpDatabase(ctx, socketPath, dumpPath, &db); err != nil {
			return fmt.Errorf("dumping database %q: %w", name, err)
		}
		manifest.Databases = append(manifest.Databases, db)
	}

	if err := WriteManifest(dumpPath, manifest); err != nil {
		return err
	}

	c.logger.Info("dump completed",
		zap.String("path", dumpPath),
		zap.Int("databases", len(manifest.Databases)))
	return nil
}

func listDatabases(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT datname FROM pg_database
		WHERE NOT datistemplate AND datallowconn
		ORDER BY datname
	`)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning databases: %w", err)
	}
	return names, nil
}

func (c *Client) dumpDatabase(ctx context.Context, socketPath, dumpPath string, db *Database) error {
	conn, err := c.Connect(ctx, socketPath, db.Name)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if err := checkSupported(ctx, conn); err != nil {
		return err
	}

	dir := filepath.Join(dumpPath, db.Dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if db.Schemas, err = listSchemas(ctx, conn); err != nil {
		return err
	}
	if db.Sequences, err = listSequences(ctx, conn); err != nil {
		return err
	}

	tables, err := listTables(ctx, conn)
	if err != nil {
		return err
	}
	for i := range tables {
		t := &tables[i]
		t.File = fmt.Sprintf("t%05d.copy", i)
		if err := describeTable(ctx, conn, t); err != nil {
			return err
		}
		if err := copyOut(ctx, conn, t, filepath.Join(dir, t.File)); err != nil {
			return err
		}
	}
	db.Tables = tables

	c.logger.Debug("database dumped",
		zap.String("database", db.Name),
		zap.Int("tables", len(db.Tables)))
	return nil
}

func listSchemas(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT nspname FROM pg_namespace
		WHERE nspname NOT IN ('pg_catalog', 'information_schema', 'public')
		  AND nspname NOT LIKE 'pg\_%'
		ORDER BY nspname
	`)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	schemas, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning schemas: %w", err)
	}
	return schemas, nil
}

// listSequences 列出独立序列，标识列的序列随表重建
func listSequences(ctx context.Context, conn *pgx.Conn) ([]Sequence, error) {
	rows, err := conn.Query(ctx, `
		SELECT s.schemaname, s.sequencename, s.data_type::text,
		       s.start_value, s.min_value, s.max_value, s.increment_by, s.cache_size, s.cycle,
		       CASE WHEN tc.oid IS NULL THEN ''
		            ELSE format('%I.%I.%I', tn.nspname, tc.relname, a.attname) END,
		       s.last_value
		FROM pg_sequences s
		JOIN pg_namespace n ON n.nspname = s.schemaname
		JOIN pg_class c ON c.relnamespace = n.oid AND c.relname = s.sequencename
		LEFT JOIN pg_depend d ON d.classid = 'pg_class'::regclass AND d.objid = c.oid
		     AND d.refclassid = 'pg_class'::regclass AND d.deptype IN ('a', 'i')
		LEFT JOIN pg_class tc ON tc.oid = d.refobjid
		LEFT JOIN pg_namespace tn ON tn.oid = tc.relnamespace
		LEFT JOIN pg_attribute a ON a.attrelid = d.refobjid AND a.attnum = d.refobjsubid
		WHERE d.deptype IS DISTINCT FROM 'i'
		ORDER BY s.schemaname, s.sequencename
	`)
	if err != nil {
		return nil, fmt.Errorf("listing sequences: %w", err)
	}
	defer rows.Close()

	var sequences []Sequence
	for rows.Next() {
		var s Sequence
		if err := rows.Scan(&s.Schema, &s.Name, &s.DataType,
			&s.Start, &s.Min, &s.Max, &s.Increment, &s.Cache, &s.Cycle,
			&s.OwnedBy, &s.LastValue); err != nil {
			return nil, fmt.Errorf("scanning sequence: %w", err)
		}
		sequences = append(sequences, s)
	}
	return sequences, rows.Err()
}

func listTables(ctx context.Context, conn *pgx.Conn) ([]Table, error) {
	rows, err := conn.Query(ctx, `
		SELECT n.nspname, c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r'
		  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
		  AND n.nspname NOT LIKE 'pg\_%'
		ORDER BY n.nspname, c.relname
	`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// describeTable 读取列、约束和索引定义
func describeTable(ctx context.Context, conn *pgx.Conn, t *Table) error {
	ident := pgx.Identifier{t.Schema, t.Name}.Sanitize()

	rows, err := conn.Query(ctx, `
		SELECT a.attname, format_type(a.atttypid, a.atttypmod), a.attnotnull,
		       COALESCE(pg_get_expr(d.adbin, d.adrelid), ''),
		       a.attidentity::text, a.attgenerated::text
		FROM pg_attribute a
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum
	`, ident)
	if err != nil {
		return fmt.Errorf("describing %s: %w", ident, err)
	}
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type, &col.NotNull, &col.Default, &col.Identity, &col.Generated); err != nil {
			rows.Close()
			return fmt.Errorf("scanning column of %s: %w", ident, err)
		}
		t.Columns = append(t.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("describing %s: %w", ident, err)
	}

	rows, err = conn.Query(ctx, `
		SELECT conname, contype::text, pg_get_constraintdef(oid)
		FROM pg_constraint
		WHERE conrelid = $1::regclass AND contype IN ('p', 'u', 'c', 'f')
		ORDER BY contype = 'f', conname
	`, ident)
	if err != nil {
		return fmt.Errorf("listing constraints of %s: %w", ident, err)
	}
	for rows.Next() {
		var con Constraint
		if err := rows.Scan(&con.Name, &con.Type, &con.Definition); err != nil {
			rows.Close()
			return fmt.Errorf("scanning constraint of %s: %w", ident, err)
		}
		t.Constraints = append(t.Constraints, con)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing constraints of %s: %w", ident, err)
	}

	rows, err = conn.Query(ctx, `
		SELECT pg_get_indexdef(i.indexrelid)
		FROM pg_index i
		WHERE i.indrelid = $1::regclass
		  AND NOT EXISTS (SELECT 1 FROM pg_constraint c WHERE c.conindid = i.indexrelid)
		ORDER BY i.indexrelid
	`, ident)
	if err != nil {
		return fmt.Errorf("listing indexes of %s: %w", ident, err)
	}
	indexes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scanning indexes of %s: %w", ident, err)
	}
	t.Indexes = indexes
	return nil
}

// copyOut 以COPY文本格式导出表数据
func copyOut(ctx context.Context, conn *pgx.Conn, t *Table, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create data file: %w", err)
	}
	defer f.Close()

	ident := pgx.Identifier{t.Schema, t.Name}.Sanitize()
	tag, err := conn.PgConn().CopyTo(ctx, f, "COPY "+t.copyTarget()+" TO STDOUT")
	if err != nil {
		return fmt.Errorf("copying %s: %w", ident, err)
	}
	t.Rows = tag.RowsAffected()

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync data file: %w", err)
	}
	return nil
}

// ErrUnsupportedObjects 数据库包含转储无法重建的对象
var ErrUnsupportedObjects = errors.New("database contains objects that cannot be dumped, migrate them manually")

// UnsupportedObject 转储无法重建的对象
type UnsupportedObject struct {
	Kind string
	Name string
}

// unsupportedObjectsQuery 扩展、自定义类型和分区表
const unsupportedObjectsQuery = `
	SELECT kind, name FROM (
		SELECT 'extension' AS kind, extname::text AS name
		FROM pg_extension
		WHERE extname <> 'plpgsql'
		UNION ALL
		SELECT CASE t.typtype
		           WHEN 'e' THEN 'enum type'
		           WHEN 'd' THEN 'domain'
		           WHEN 'r' THEN 'range type'
		           ELSE 'composite type' END,
		       format('%I.%I', n.nspname, t.typname)
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
		  AND n.nspname NOT LIKE 'pg\_%'
		  AND (t.typtype IN ('e', 'd', 'r')
		       OR (t.typtype = 'c' AND EXISTS (
		           SELECT 1 FROM pg_class c WHERE c.oid = t.typrelid AND c.relkind = 'c')))
		UNION ALL
		SELECT 'partitioned table', format('%I.%I', n.nspname, c.relname)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'p'
	) o
	ORDER BY kind, name
`

// checkSupported 在写入任何数据前拒绝无法重建的数据库
func checkSupported(ctx context.Context, conn *pgx.Conn) error {
	rows, err := conn.Query(ctx, unsupportedObjectsQuery)
	if err != nil {
		return fmt.Errorf("checking database objects: %w", err)
	}
	defer rows.Close()

	var objects []UnsupportedObject
	for rows.Next() {
		var o UnsupportedObject
		if err := rows.Scan(&o.Kind, &o.Name); err != nil {
			return fmt.Errorf("scanning database object: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("checking database objects: %w", err)
	}
	return unsupportedError(objects)
}

func unsupportedError(objects []UnsupportedObject) error {
	if len(objects) == 0 {
		return nil
	}
	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = o.Kind + " " + o.Name
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedObjects, strings.Join(names, ", "))
}
