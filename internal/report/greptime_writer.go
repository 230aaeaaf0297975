package report

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"balltrack/internal/accuracy"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "ball_accuracy"

const writeTimeout = 5 * time.Second

// greptimeClient is the part of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter inserts accuracy rows into GreptimeDB.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and writes
// into database.tableName. The table is created by GreptimeDB on first insert.
func NewGreptimeDBWriter(endpoint, database, tableName string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port != 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	if tableName == "" {
		tableName = DefaultTable
	}
	return &GreptimeDBWriter{client: client, table: tableName}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port
		return endpoint, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptime port %q: %w", portStr, err)
	}
	return host, port, nil
}

// Write inserts a single row.
func (w *GreptimeDBWriter) Write(row accuracy.Row) error {
	return w.WriteBatch([]accuracy.Row{row})
}

// WriteBatch inserts multiple rows in one request.
func (w *GreptimeDBWriter) WriteBatch(rows []accuracy.Row) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := w.buildTable(rows)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		slog.Error("greptime write failed", "table", w.table, "err", err)
		return err
	}
	slog.Debug("greptime rows written", "table", w.table, "rows", len(rows))
	return nil
}

func (w *GreptimeDBWriter) buildTable(rows []accuracy.Row) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("frame_no", types.INT64); err != nil {
		return nil, err
	}
	for _, name := range []string{"true_x", "true_y", "reported_x", "reported_y", "error"} {
		if err := tbl.AddFieldColumn(name, types.FLOAT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("matched", types.BOOLEAN); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.SessionID, r.FrameNo, r.TrueX, r.TrueY,
			r.ReportedX, r.ReportedY, r.Error, r.Matched, r.Timestamp); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
