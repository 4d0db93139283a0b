package dbclient

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Options 连接配置
type Options struct {
	User        string
	Database    string
	WaitTimeout time.Duration
}

// Client 通过unix socket连接实例的数据库客户端
type Client struct {
	opts   Options
	logger *zap.Logger
}

// New 创建数据库客户端
func New(opts Options, logger *zap.Logger) *Client {
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	return &Client{opts: opts, logger: logger}
}

// connConfig 根据socket路径构造连接配置
// socket文件名形如.s.PGSQL.<port>，所在目录即host
func (c *Client) connConfig(socketPath, database string) (*pgx.ConnConfig, error) {
	port, err := portFromSocket(socketPath)
	if err != nil {
		return nil, err
	}

	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection config: %w", err)
	}
	cfg.Host = filepath.Dir(socketPath)
	cfg.Port = port
	cfg.User = c.opts.User
	cfg.Database = database
	cfg.TLSConfig = nil
	cfg.Fallbacks = nil
	return cfg, nil
}

// Connect 连接数据库，在WaitTimeout内重试直到服务器可用
func (c *Client) Connect(ctx context.Context, socketPath, database string) (*pgx.Conn, error) {
	cfg, err := c.connConfig(socketPath, database)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxDuration(c.opts.WaitTimeout, retry.NewConstant(250*time.Millisecond))

	var conn *pgx.Conn
	attempts := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		conn, err = pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s (database %q) after %d attempts: %w",
			socketPath, database, attempts, err)
	}

	c.logger.Debug("connected",
		zap.String("socket", socketPath),
		zap.String("database", database),
		zap.Int("attempts", attempts))
	return conn, nil
}

// EnsureDatabase 数据库不存在时创建
func (c *Client) EnsureDatabase(ctx context.Context, socketPath, name string) error {
	conn, err := c.Connect(ctx, socketPath, c.opts.Database)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	return ensureDatabase(ctx, conn, name)
}

func ensureDatabase(ctx context.Context, conn *pgx.Conn, name string) error {
	var exists bool
	if err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists); err != nil {
		return fmt.Errorf("checking database %q: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("creating database %q: %w", name, err)
	}
	return nil
}

func portFromSocket(socketPath string) (uint16, error) {
	base := filepath.Base(socketPath)
	idx := strings.LastIndex(base, ".")
	if !strings.HasPrefix(base, ".s.PGSQL.") || idx < 0 {
		return 0, fmt.Errorf("invalid socket path %q", socketPath)
	}
	port, err := strconv.ParseUint(base[idx+1:], 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("invalid port in socket path %q", socketPath)
	}
	return uint16(port), nil
}
