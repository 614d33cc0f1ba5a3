package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

// ColumnInfo describes one column of a telemetry table.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SQLClient wraps one telemetry database connection and knows the
// dialect differences between the supported engines.
type SQLClient struct {
	db     *sql.DB
	driver string
}

func OpenSQL(cfg ConnectionConfig) (*SQLClient, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, fmt.Errorf("connection type is required")
	}
	var driver, dsn string
	switch strings.ToLower(cfg.Type) {
	case "mysql":
		driver, dsn = "mysql", mysqlDSN(cfg)
	case "postgres", "postgresql":
		driver, dsn = "postgres", postgresDSN(cfg)
	case "mssql", "sqlserver":
		driver, dsn = "sqlserver", mssqlDSN(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driver, err)
	}
	return &SQLClient{db: db, driver: driver}, nil
}

func mysqlDSN(cfg ConnectionConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, port, cfg.Database)
	if strings.ToLower(strings.TrimSpace(cfg.SSLMode)) == "disable" || cfg.SSLMode == "" {
		dsn += "&tls=false"
	} else {
		dsn += "&tls=true"
	}
	return dsn
}

func postgresDSN(cfg ConnectionConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := strings.TrimSpace(cfg.SSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Database, sslMode)
}

func mssqlDSN(cfg ConnectionConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	user := url.QueryEscape(cfg.User)
	pass := url.QueryEscape(cfg.Password)
	encrypt := "true"
	if strings.ToLower(strings.TrimSpace(cfg.SSLMode)) == "disable" {
		encrypt = "disable"
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s", user, pass, cfg.Host, port, cfg.Database, encrypt)
}

func (c *SQLClient) Close() error {
	return c.db.Close()
}

func (c *SQLClient) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", c.driver, err)
	}
	return nil
}

func (c *SQLClient) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch c.driver {
	case "sqlserver":
		query = "SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_CATALOG = DB_NAME()"
	case "mysql":
		query = "SELECT table_schema, table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND table_schema = DATABASE()"
	default:
		query = "SELECT table_schema, table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND table_schema NOT IN ('pg_catalog', 'information_schema')"
	}
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s tables: %w", c.driver, err)
	}
	defer rows.Close()
	results := []string{}
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scan %s table name: %w", c.driver, err)
		}
		results = append(results, fmt.Sprintf("%s.%s", schema, name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s tables: %w", c.driver, err)
	}
	return results, nil
}

func (c *SQLClient) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	schema, name, err := c.splitTable(table)
	if err != nil {
		return nil, err
	}
	var query string
	switch c.driver {
	case "sqlserver":
		query = "SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_CATALOG = DB_NAME() AND TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION"
	case "mysql":
		query = "SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ? ORDER BY ordinal_position"
	default:
		query = "SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2 ORDER BY ordinal_position"
	}
	rows, err := c.db.QueryContext(ctx, query, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query %s columns: %w", c.driver, err)
	}
	defer rows.Close()
	columns := []ColumnInfo{}
	for rows.Next() {
		var colName, dataType string
		if err := rows.Scan(&colName, &dataType); err != nil {
			return nil, fmt.Errorf("scan %s column: %w", c.driver, err)
		}
		columns = append(columns, ColumnInfo{Name: colName, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s columns: %w", c.driver, err)
	}
	return columns, nil
}

// splitTable resolves an optionally schema-qualified table name. The
// schema defaults to dbo on SQL Server and to the session schema
// elsewhere.
func (c *SQLClient) splitTable(table string) (string, string, error) {
	parts, err := splitIdentifier(table)
	if err != nil {
		return "", "", fmt.Errorf("invalid table: %w", err)
	}
	if len(parts) == 2 {
		return parts[0], parts[1], nil
	}
	if c.driver == "sqlserver" {
		return "dbo", parts[0], nil
	}
	return "", parts[0], nil
}

func (c *SQLClient) quoteIdent(name string) (string, error) {
	parts, err := splitIdentifier(name)
	if err != nil {
		return "", err
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		switch c.driver {
		case "mysql":
			quoted[i] = "`" + p + "`"
		case "sqlserver":
			quoted[i] = "[" + p + "]"
		default:
			quoted[i] = `"` + p + `"`
		}
	}
	return strings.Join(quoted, "."), nil
}

// SQLSource polls one machine's telemetry table for rows newer than
// the caller's watermark.
type SQLSource struct {
	client    *SQLClient
	machineID string
	spec      SourceSpec
}

func NewSQLSource(client *SQLClient, machineID string, spec SourceSpec) *SQLSource {
	return &SQLSource{client: client, machineID: machineID, spec: spec}
}

func (s *SQLSource) Kind() string { return KindSQL }

func (s *SQLSource) Close() error { return s.client.Close() }

// Client exposes the underlying connection for runtime validation.
func (s *SQLSource) Client() *SQLClient { return s.client }

func (s *SQLSource) Fetch(ctx context.Context, since time.Time, limit int) ([]classify.Sample, error) {
	query, args, err := s.buildFetchQuery(since, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry rows: %w", err)
	}
	defer rows.Close()

	zones := len(s.spec.TemperatureColumns)
	samples := []classify.Sample{}
	for rows.Next() {
		raw := make([]any, 3+zones)
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan telemetry row: %w", err)
		}
		ts, ok := toTime(raw[0])
		if !ok {
			return nil, fmt.Errorf("row %d: column %s is not a timestamp", len(samples), s.spec.TimestampColumn)
		}
		sample := classify.Sample{
			MachineID:    s.machineID,
			Timestamp:    ts.UTC(),
			RPM:          floatOrNaN(raw[1]),
			Pressure:     floatOrNaN(raw[2]),
			Temperatures: make([]float64, zones),
		}
		for i := 0; i < zones; i++ {
			sample.Temperatures[i] = floatOrNaN(raw[3+i])
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry rows: %w", err)
	}
	return samples, nil
}

func (s *SQLSource) buildFetchQuery(since time.Time, limit int) (string, []any, error) {
	table, err := s.client.quoteIdent(s.spec.Table)
	if err != nil {
		return "", nil, fmt.Errorf("invalid table: %w", err)
	}
	tsCol, err := s.client.quoteIdent(s.spec.TimestampColumn)
	if err != nil {
		return "", nil, fmt.Errorf("invalid timestamp column: %w", err)
	}
	selectCols := []string{tsCol}
	for _, name := range append([]string{s.spec.RPMColumn, s.spec.PressureColumn}, s.spec.TemperatureColumns...) {
		col, err := s.client.quoteIdent(name)
		if err != nil {
			return "", nil, fmt.Errorf("invalid column %q: %w", name, err)
		}
		selectCols = append(selectCols, col)
	}
	var machineCol string
	if s.spec.MachineColumn != "" {
		machineCol, err = s.client.quoteIdent(s.spec.MachineColumn)
		if err != nil {
			return "", nil, fmt.Errorf("invalid machine column: %w", err)
		}
	}
	cols := strings.Join(selectCols, ", ")

	switch s.client.driver {
	case "sqlserver":
		query := fmt.Sprintf("SELECT TOP (@p1) %s FROM %s WHERE %s > @p2", cols, table, tsCol)
		args := []any{limit, since}
		if machineCol != "" {
			query += fmt.Sprintf(" AND %s = @p3", machineCol)
			args = append(args, s.spec.MachineKey)
		}
		query += fmt.Sprintf(" ORDER BY %s ASC", tsCol)
		return query, args, nil
	case "mysql":
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > ?", cols, table, tsCol)
		args := []any{since}
		if machineCol != "" {
			query += fmt.Sprintf(" AND %s = ?", machineCol)
			args = append(args, s.spec.MachineKey)
		}
		query += fmt.Sprintf(" ORDER BY %s ASC LIMIT ?", tsCol)
		args = append(args, limit)
		return query, args, nil
	default:
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1", cols, table, tsCol)
		args := []any{since}
		n := 2
		if machineCol != "" {
			query += fmt.Sprintf(" AND %s = $%d", machineCol, n)
			args = append(args, s.spec.MachineKey)
			n++
		}
		query += fmt.Sprintf(" ORDER BY %s ASC LIMIT $%d", tsCol, n)
		args = append(args, limit)
		return query, args, nil
	}
}

// floatOrNaN converts a scanned value to float64. Unreadable values
// become NaN so the row is rejected by sample validation instead of
// silently classified with a fabricated zero.
func floatOrNaN(v any) float64 {
	f, ok := toFloat(v)
	if !ok {
		return math.NaN()
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
