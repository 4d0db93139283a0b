package dbclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Restore 从dumpPath目录恢复所有数据库
// 目标表已存在时失败，不覆盖已有数据
func (c *Client) Restore(ctx context.Context, socketPath, dumpPath string) error {
	manifest, err := ReadManifest(dumpPath)
	if err != nil {
		return err
	}

	conn, err := c.Connect(ctx, socketPath, c.opts.Database)
	if err != nil {
		return err
	}
	for _, db := range manifest.Databases {
		if err := ensureDatabase(ctx, conn, db.Name); err != nil {
			conn.Close(ctx)
			return err
		}
	}
	conn.Close(ctx)

	for i := range manifest.Databases {
		db := &manifest.Databases[i]
		if err := c.restoreDatabase(ctx, socketPath, filepath.Join(dumpPath, db.Dir), db); err != nil {
			return fmt.Errorf("restoring database %q: %w", db.Name, err)
		}
	}

	c.logger.Info("restore completed",
		zap.String("path", dumpPath),
		zap.String("source_version", manifest.ServerVersion),
		zap.Int("databases", len(manifest.Databases)))
	return nil
}

func (c *Client) restoreDatabase(ctx context.Context, socketPath, dir string, db *Database) error {
	conn, err := c.Connect(ctx, socketPath, db.Name)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	for _, stmt := range schemaStatements(db) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}

	for i := range db.Tables {
		if err := copyIn(ctx, conn, &db.Tables[i], filepath.Join(dir, db.Tables[i].File)); err != nil {
			return err
		}
	}

	for _, stmt := range postDataStatements(db) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}

	c.logger.Debug("database restored",
		zap.String("database", db.Name),
		zap.Int("tables", len(db.Tables)))
	return nil
}

// schemaStatements 创建模式、序列和表的语句
func schemaStatements(db *Database) []string {
	var stmts []string
	for _, s := range db.Schemas {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{s}.Sanitize())
	}
	for i := range db.Sequences {
		stmts = append(stmts, createSequenceStatement(&db.Sequences[i]))
	}
	for i := range db.Tables {
		stmts = append(stmts, createTableStatement(&db.Tables[i]))
	}
	// 序列归属需要表已存在
	for _, s := range db.Sequences {
		if s.OwnedBy != "" {
			stmts = append(stmts, fmt.Sprintf("ALTER SEQUENCE %s OWNED BY %s",
				pgx.Identifier{s.Schema, s.Name}.Sanitize(), s.OwnedBy))
		}
	}
	return stmts
}

// postDataStatements 数据导入后执行的约束、索引和序列值语句
// 外键最后添加，被引用表的主键和唯一约束此时都已存在
func postDataStatements(db *Database) []string {
	var stmts, foreignKeys []string
	for _, t := range db.Tables {
		ident := pgx.Identifier{t.Schema, t.Name}.Sanitize()
		for _, con := range t.Constraints {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s",
				ident, pgx.Identifier{con.Name}.Sanitize(), con.Definition)
			if con.ForeignKey() {
				foreignKeys = append(foreignKeys, stmt)
			} else {
				stmts = append(stmts, stmt)
			}
		}
		stmts = append(stmts, t.Indexes...)
		for _, col := range t.Columns {
			if col.Identity != "" {
				stmts = append(stmts, identityResetStatement(&t, &col))
			}
		}
	}
	stmts = append(stmts, foreignKeys...)

	for _, s := range db.Sequences {
		if s.LastValue == nil {
			continue
		}
		name := pgx.Identifier{s.Schema, s.Name}.Sanitize()
		stmts = append(stmts, fmt.Sprintf("SELECT setval(%s, %d, true)", quoteLiteral(name), *s.LastValue))
	}
	return stmts
}

func createSequenceStatement(s *Sequence) string {
	stmt := "CREATE SEQUENCE " + pgx.Identifier{s.Schema, s.Name}.Sanitize()
	if s.Increment == 0 {
		return stmt
	}
	if s.DataType != "" {
		stmt += " AS " + s.DataType
	}
	stmt += fmt.Sprintf(" INCREMENT BY %d MINVALUE %d MAXVALUE %d START WITH %d",
		s.Increment, s.Min, s.Max, s.Start)
	if s.Cache > 0 {
		stmt += fmt.Sprintf(" CACHE %d", s.Cache)
	}
	if s.Cycle {
		stmt += " CYCLE"
	} else {
		stmt += " NO CYCLE"
	}
	return stmt
}

func createTableStatement(t *Table) string {
	cols := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		def := pgx.Identifier{col.Name}.Sanitize() + " " + col.Type
		switch {
		case col.Generated != "":
			def += " GENERATED ALWAYS AS (" + col.Default + ") STORED"
		case col.Identity == "a":
			def += " GENERATED ALWAYS AS IDENTITY"
		case col.Identity == "d":
			def += " GENERATED BY DEFAULT AS IDENTITY"
		case col.Default != "":
			def += " DEFAULT " + col.Default
		}
		if col.NotNull {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)",
		pgx.Identifier{t.Schema, t.Name}.Sanitize(), strings.Join(cols, ",\n  "))
}

// identityResetStatement 将标识列的序列推进到已恢复数据的最大值
func identityResetStatement(t *Table, col *Column) string {
	ident := pgx.Identifier{t.Schema, t.Name}.Sanitize()
	column := pgx.Identifier{col.Name}.Sanitize()
	return fmt.Sprintf("SELECT setval(pg_get_serial_sequence(%s, %s), COALESCE(max(%s), 1), max(%s) IS NOT NULL) FROM %s",
		quoteLiteral(ident), quoteLiteral(col.Name), column, column, ident)
}

// copyIn 以COPY文本格式导入表数据
func copyIn(ctx context.Context, conn *pgx.Conn, t *Table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	ident := pgx.Identifier{t.Schema, t.Name}.Sanitize()
	tag, err := conn.PgConn().CopyFrom(ctx, f, "COPY "+t.copyTarget()+" FROM STDIN")
	if err != nil {
		return fmt.Errorf("copying into %s: %w", ident, err)
	}
	if tag.RowsAffected() != t.Rows {
		return fmt.Errorf("copying into %s: expected %d rows, restored %d", ident, t.Rows, tag.RowsAffected())
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
