package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/malbeclabs/fraudprep/internal/geo"
)

const rowIDColumn = "__row"

type Loader struct {
	log *slog.Logger
	db  *sql.DB
	seq int
}

// Open starts an in-memory DuckDB instance used for reading and cleaning CSV files.
func Open(ctx context.Context, log *slog.Logger) (*Loader, error) {
	if log == nil {
		return nil, fmt.Errorf("log is nil")
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Tables live in the single in-memory database; one connection keeps the
	// session state predictable.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Loader{log: log, db: db}, nil
}

func (l *Loader) Close() error {
	return l.db.Close()
}

// LoadTransactions reads, cleans and types the e-commerce transaction dataset.
func (l *Loader) LoadTransactions(ctx context.Context, path string) ([]Transaction, CleanStats, error) {
	table, stats, err := l.stageClean(ctx, path, TransactionColumns)
	if err != nil {
		return nil, stats, err
	}
	defer l.drop(ctx, table)

	query := fmt.Sprintf(`SELECT
		%s, CAST(%s AS TIMESTAMP), CAST(%s AS TIMESTAMP), %s,
		%s, %s, %s, %s, %s, %s, %s
		FROM %s ORDER BY %s`,
		castInt(ColUserID), quoteIdent(ColSignupTime), quoteIdent(ColPurchaseTime), castDouble(ColPurchaseValue),
		quoteIdent(ColDeviceID), quoteIdent(ColSource), quoteIdent(ColBrowser), quoteIdent(ColSex),
		castInt(ColAge), castInt(ColIPAddress), castDouble(ColClass),
		quoteIdent(table), quoteIdent(rowIDColumn))

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to cast transactions from %s: %w", path, err)
	}
	defer rows.Close()

	txs := make([]Transaction, 0, stats.Kept)
	for rows.Next() {
		var (
			tx    Transaction
			class float64
		)
		if err := rows.Scan(
			&tx.UserID, &tx.SignupTime, &tx.PurchaseTime, &tx.PurchaseValue,
			&tx.DeviceID, &tx.Source, &tx.Browser, &tx.Sex,
			&tx.Age, &tx.IPAddress, &class,
		); err != nil {
			return nil, stats, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		if tx.Class, err = binaryLabel(class); err != nil {
			return nil, stats, fmt.Errorf("%w: %s=%v in %s", err, ColClass, class, path)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}

	l.log.Info("dataset: loaded transactions", "path", path, "read", stats.Read,
		"dropped_missing", stats.DroppedMissing, "dropped_duplicate", stats.DroppedDuplicate, "kept", len(txs))
	return txs, stats, nil
}

// LoadIPRanges reads the IP range to country table sorted by lower bound. Rows with a
// missing field are skipped. No cleaning beyond that is applied.
func (l *Loader) LoadIPRanges(ctx context.Context, path string) ([]geo.Range, error) {
	table, err := l.stageRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	defer l.drop(ctx, table)

	if err := l.requireColumns(ctx, table, path, IPRangeColumns); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s, %s, %s FROM %s WHERE %s ORDER BY 1, %s`,
		castInt(ColLowerBound), castInt(ColUpperBound), quoteIdent(ColCountry),
		quoteIdent(table), notMissing(IPRangeColumns), quoteIdent(rowIDColumn))
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to cast ip ranges from %s: %w", path, err)
	}
	defer rows.Close()

	var ranges []geo.Range
	for rows.Next() {
		var r geo.Range
		if err := rows.Scan(&r.Lower, &r.Upper, &r.Country); err != nil {
			return nil, fmt.Errorf("failed to scan ip range row: %w", err)
		}
		ranges = append(ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ip range rows: %w", err)
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, path)
	}

	l.log.Info("dataset: loaded ip ranges", "path", path, "ranges", len(ranges))
	return ranges, nil
}

// LoadLabeled reads a numeric table whose label column is binary. Every other column
// becomes a float64 feature in file order.
func (l *Loader) LoadLabeled(ctx context.Context, path, label string) (*LabeledTable, CleanStats, error) {
	table, stats, err := l.stageClean(ctx, path, []string{label})
	if err != nil {
		return nil, stats, err
	}
	defer l.drop(ctx, table)

	columns, err := l.columns(ctx, table)
	if err != nil {
		return nil, stats, err
	}
	features := slices.DeleteFunc(columns, func(c string) bool { return c == label })

	exprs := make([]string, 0, len(features)+1)
	for _, c := range features {
		exprs = append(exprs, castDouble(c))
	}
	exprs = append(exprs, castDouble(label))
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(exprs, ", "), quoteIdent(table), quoteIdent(rowIDColumn))

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to cast labeled table from %s: %w", path, err)
	}
	defer rows.Close()

	out := &LabeledTable{
		Columns: features,
		Label:   label,
		X:       make([][]float64, 0, stats.Kept),
		Y:       make([]int, 0, stats.Kept),
	}
	dest := make([]any, len(features)+1)
	for rows.Next() {
		x := make([]float64, len(features))
		for i := range x {
			dest[i] = &x[i]
		}
		var raw float64
		dest[len(features)] = &raw
		if err := rows.Scan(dest...); err != nil {
			return nil, stats, fmt.Errorf("failed to scan labeled row: %w", err)
		}
		y, err := binaryLabel(raw)
		if err != nil {
			return nil, stats, fmt.Errorf("%w: %s=%v in %s", err, label, raw, path)
		}
		out.X = append(out.X, x)
		out.Y = append(out.Y, y)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to iterate labeled rows: %w", err)
	}

	l.log.Info("dataset: loaded labeled table", "path", path, "features", len(features), "read", stats.Read,
		"dropped_missing", stats.DroppedMissing, "dropped_duplicate", stats.DroppedDuplicate, "kept", out.Len())
	return out, stats, nil
}

// stageRaw copies the CSV into a fresh table with every column as text and a row
// number recording file order.
func (l *Loader) stageRaw(ctx context.Context, path string) (string, error) {
	l.seq++
	table := fmt.Sprintf("raw_%d", l.seq)
	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT row_number() OVER () AS %s, * FROM read_csv(%s, header = true, all_varchar = true)`,
		quoteIdent(table), quoteIdent(rowIDColumn), quoteLiteral(path))
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return "", fmt.Errorf("failed to read csv %s: %w", path, err)
	}
	l.log.Debug("dataset: staged csv", "path", path, "table", table)
	return table, nil
}

// stageClean stages the CSV, then keeps the first occurrence of every distinct row
// that has no missing field.
func (l *Loader) stageClean(ctx context.Context, path string, required []string) (string, CleanStats, error) {
	var stats CleanStats

	raw, err := l.stageRaw(ctx, path)
	if err != nil {
		return "", stats, err
	}
	defer l.drop(ctx, raw)

	if err := l.requireColumns(ctx, raw, path, required); err != nil {
		return "", stats, err
	}
	columns, err := l.columns(ctx, raw)
	if err != nil {
		return "", stats, err
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	list := strings.Join(quoted, ", ")

	if err := l.count(ctx, fmt.Sprintf("SELECT count(*) FROM %s", quoteIdent(raw)), &stats.Read); err != nil {
		return "", stats, err
	}
	var complete int
	if err := l.count(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", quoteIdent(raw), notMissing(columns)), &complete); err != nil {
		return "", stats, err
	}

	clean := strings.Replace(raw, "raw_", "clean_", 1)
	query := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS
		SELECT min(%s) AS %s, %s FROM %s WHERE %s GROUP BY %s`,
		quoteIdent(clean), quoteIdent(rowIDColumn), quoteIdent(rowIDColumn), list,
		quoteIdent(raw), notMissing(columns), list)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return "", stats, fmt.Errorf("failed to clean %s: %w", path, err)
	}
	if err := l.count(ctx, fmt.Sprintf("SELECT count(*) FROM %s", quoteIdent(clean)), &stats.Kept); err != nil {
		l.drop(ctx, clean)
		return "", stats, err
	}
	stats.DroppedMissing = stats.Read - complete
	stats.DroppedDuplicate = complete - stats.Kept

	if stats.Kept == 0 {
		l.drop(ctx, clean)
		return "", stats, fmt.Errorf("%w: %s", ErrEmptyDataset, path)
	}
	return clean, stats, nil
}

func (l *Loader) requireColumns(ctx context.Context, table, path string, required []string) error {
	columns, err := l.columns(ctx, table)
	if err != nil {
		return err
	}
	for _, c := range required {
		if !slices.Contains(columns, c) {
			return fmt.Errorf("%w: %q in %s", ErrMissingColumn, c, path)
		}
	}
	return nil
}

// columns returns the CSV columns of a staged table, without the row number.
func (l *Loader) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		if name != rowIDColumn {
			columns = append(columns, name)
		}
	}
	return columns, rows.Err()
}

func (l *Loader) count(ctx context.Context, query string, dst *int) error {
	if err := l.db.QueryRowContext(ctx, query).Scan(dst); err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}
	return nil
}

func (l *Loader) drop(ctx context.Context, table string) {
	if _, err := l.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		l.log.Warn("dataset: failed to drop staging table", "table", table, "error", err)
	}
}

// notMissing builds a predicate that is true when no column is NULL, blank or one of
// MissingTokens.
func notMissing(columns []string) string {
	tokens := make([]string, 0, len(MissingTokens)+1)
	tokens = append(tokens, "''")
	for _, t := range MissingTokens {
		tokens = append(tokens, quoteLiteral(t))
	}
	set := strings.Join(tokens, ", ")

	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("(%s IS NOT NULL AND trim(%s) NOT IN (%s))", quoteIdent(c), quoteIdent(c), set)
	}
	return strings.Join(parts, " AND ")
}

// castInt truncates a textual number toward zero, matching an int64 cast of a float.
func castInt(column string) string {
	return fmt.Sprintf("CAST(trunc(CAST(%s AS DOUBLE)) AS BIGINT)", quoteIdent(column))
}

func castDouble(column string) string {
	return fmt.Sprintf("CAST(%s AS DOUBLE)", quoteIdent(column))
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
