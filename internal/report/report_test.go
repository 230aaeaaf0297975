package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"balltrack/internal/accuracy"
)

func sampleRows() []accuracy.Row {
	ts := time.Unix(1700000000, 250000000).UTC()
	return []accuracy.Row{
		{SessionID: "s1", FrameNo: 3000, TrueX: 10, TrueY: 20, ReportedX: 12, ReportedY: 18, Error: 2.828, Matched: true, Timestamp: ts},
		{SessionID: "s1", FrameNo: 6000, ReportedX: 1, ReportedY: 2, Timestamp: ts.Add(time.Second)},
	}
}

type collectWriter struct{ rows []accuracy.Row }

func (c *collectWriter) Write(r accuracy.Row) error {
	c.rows = append(c.rows, r)
	return nil
}

type failWriter struct{ calls int }

func (f *failWriter) Write(accuracy.Row) error {
	f.calls++
	return errors.New("boom")
}

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	if err := w.WriteBatch(sampleRows()); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got accuracy.Row
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.FrameNo != 3000 || !got.Matched {
		t.Fatalf("unexpected row %+v", got)
	}
	if !strings.Contains(lines[0], `"session_id":"s1"`) {
		t.Fatalf("missing session_id in %s", lines[0])
	}
}

func TestColorStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &ColorStdoutWriter{out: &buf}
	for _, r := range sampleRows() {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	out := buf.String()
	if strings.Count(out, "session s1") != 1 {
		t.Fatalf("session header should be printed once:\n%s", out)
	}
	if !strings.Contains(out, colorYellow+"error=2.83") {
		t.Fatalf("expected yellow error band:\n%s", out)
	}
	if !strings.Contains(out, "unmatched") {
		t.Fatalf("expected unmatched row:\n%s", out)
	}
}

func TestErrorColor(t *testing.T) {
	cases := []struct {
		row  accuracy.Row
		want string
	}{
		{accuracy.Row{Matched: true, Error: 1}, colorGreen},
		{accuracy.Row{Matched: true, Error: 4}, colorYellow},
		{accuracy.Row{Matched: true, Error: 9}, colorRed},
		{accuracy.Row{Matched: false}, colorGray},
	}
	for _, c := range cases {
		if got := errorColor(c.row); got != c.want {
			t.Errorf("errorColor(%+v) = %q, want %q", c.row, got, c.want)
		}
	}
}

func TestFileWriterAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accuracy.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	rows := sampleRows()
	if err := fw.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	cw := &collectWriter{}
	if err := ReplayLogFile(path, cw, 0); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(cw.rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.rows))
	}
	for i, r := range rows {
		if cw.rows[i].FrameNo != r.FrameNo || !cw.rows[i].Timestamp.Equal(r.Timestamp) {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestRawLogWriterAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accuracy.cbor")
	w, err := NewRawLogWriter(path)
	if err != nil {
		t.Fatalf("NewRawLogWriter: %v", err)
	}
	rows := sampleRows()
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cw := &collectWriter{}
	if err := ReplayLogFile(path, cw, 0); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(cw.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(cw.rows))
	}
	got := cw.rows[0]
	if got.SessionID != "s1" || got.Error != 2.828 || !got.Matched {
		t.Fatalf("unexpected row %+v", got)
	}
	if !got.Timestamp.Equal(rows[0].Timestamp) {
		t.Fatalf("timestamp %v, want %v", got.Timestamp, rows[0].Timestamp)
	}
}

func TestMarshalRowRoundTrip(t *testing.T) {
	row := sampleRows()[0]
	data, err := MarshalRow(row)
	if err != nil {
		t.Fatalf("MarshalRow: %v", err)
	}
	got, err := UnmarshalRow(data)
	if err != nil {
		t.Fatalf("UnmarshalRow: %v", err)
	}
	if got.FrameNo != row.FrameNo || got.ReportedX != row.ReportedX || !got.Timestamp.Equal(row.Timestamp) {
		t.Fatalf("got %+v, want %+v", got, row)
	}
}

func TestReplayMalformed(t *testing.T) {
	err := ReplayLog(strings.NewReader("{not json"), &collectWriter{}, 0)
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestReplaySpeed(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	start := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		enc.Encode(accuracy.Row{FrameNo: int64(i), Timestamp: start.Add(time.Duration(i) * 100 * time.Millisecond)})
	}
	cw := &collectWriter{}
	began := time.Now()
	if err := ReplayLog(&buf, cw, 10); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if d := time.Since(began); d < 15*time.Millisecond {
		t.Fatalf("replay at 10x finished in %s, expected ~20ms", d)
	}
	if len(cw.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(cw.rows))
	}
}

func TestMultiWriterContinuesPastFailure(t *testing.T) {
	fail := &failWriter{}
	cw := &collectWriter{}
	mw := NewMultiWriter(fail, nil, cw)
	if len(mw.Writers()) != 2 {
		t.Fatalf("nil writer should be skipped")
	}
	if err := mw.Write(sampleRows()[0]); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(cw.rows) != 1 {
		t.Fatalf("second writer should still receive the row")
	}
	if err := mw.WriteBatch(sampleRows()); err == nil {
		t.Fatalf("expected batch error")
	}
	if len(cw.rows) != 3 || fail.calls != 2 {
		t.Fatalf("rows=%d fail calls=%d", len(cw.rows), fail.calls)
	}
}

func TestMultiWriterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	mw := NewMultiWriter(&collectWriter{}, fw)
	if err := mw.Write(sampleRows()[0]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected log file to be non-empty")
	}
}

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func TestGreptimeWriterRows(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: DefaultTable}
	if err := w.WriteBatch(sampleRows()); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Schema) != 9 {
		t.Fatalf("unexpected schema length: %d", len(rows.Schema))
	}
	if rows.Schema[0].ColumnName != "session_id" || rows.Schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("first column should be the session tag: %+v", rows.Schema[0])
	}
	if rows.Schema[8].SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("last column should be the time index: %+v", rows.Schema[8])
	}
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	first := rows.Rows[0].Values
	if first[0].GetStringValue() != "s1" {
		t.Fatalf("session_id = %q", first[0].GetStringValue())
	}
	if first[1].GetI64Value() != 3000 {
		t.Fatalf("frame_no = %d", first[1].GetI64Value())
	}
	if first[6].GetF64Value() != 2.828 {
		t.Fatalf("error = %v", first[6].GetF64Value())
	}
	if !first[7].GetBoolValue() || rows.Rows[1].Values[7].GetBoolValue() {
		t.Fatalf("matched column wrong")
	}
}

func TestGreptimeWriterEmptyAndFailure(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := &GreptimeDBWriter{client: m, table: "t"}
	if err := w.WriteBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if m.table != nil {
		t.Fatalf("empty batch should not reach the client")
	}
	if err := w.Write(sampleRows()[0]); err == nil {
		t.Fatalf("expected client error")
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		err  bool
	}{
		{"greptime", "greptime", 0, false},
		{"127.0.0.1:4001", "127.0.0.1", 4001, false},
		{"db:abc", "", 0, true},
	}
	for _, c := range cases {
		host, port, err := splitEndpoint(c.in)
		if (err != nil) != c.err {
			t.Fatalf("splitEndpoint(%q) err=%v", c.in, err)
		}
		if !c.err && (host != c.host || port != c.port) {
			t.Fatalf("splitEndpoint(%q) = %s,%d", c.in, host, port)
		}
	}
}
