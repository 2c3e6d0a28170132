package recordstore

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdsdatatypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
)

func TestRowsFromRecords(t *testing.T) {
	columns := []rdsdatatypes.ColumnMetadata{
		{Name: aws.String("filename")},
		{Name: aws.String("file_size")},
		{Name: aws.String("annotation")},
		{Name: aws.String("avg_file_size")},
	}
	records := [][]rdsdatatypes.Field{
		{
			&rdsdatatypes.FieldMemberStringValue{Value: "abc.jpg"},
			&rdsdatatypes.FieldMemberLongValue{Value: 4200},
			&rdsdatatypes.FieldMemberIsNull{Value: true},
			&rdsdatatypes.FieldMemberDoubleValue{Value: 1234.5},
		},
	}

	rows := rowsFromRecords(columns, records)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if got := rowString(row, "filename"); got != "abc.jpg" {
		t.Errorf("filename = %q, want %q", got, "abc.jpg")
	}
	if got := rowInt64(row, "file_size"); got != 4200 {
		t.Errorf("file_size = %d, want 4200", got)
	}
	if row["annotation"] != nil {
		t.Errorf("annotation = %v, want nil", row["annotation"])
	}
	if got := rowFloat(row, "avg_file_size"); got != 1234.5 {
		t.Errorf("avg_file_size = %v, want 1234.5", got)
	}
}

func TestRowsFromRecordsShortRecord(t *testing.T) {
	columns := []rdsdatatypes.ColumnMetadata{
		{Name: aws.String("a")},
		{Name: aws.String("b")},
	}
	records := [][]rdsdatatypes.Field{
		{&rdsdatatypes.FieldMemberStringValue{Value: "x"}},
	}

	rows := rowsFromRecords(columns, records)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0]["b"]; ok {
		t.Error("column b should be absent for a short record")
	}
}

func TestRowTime(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  *time.Time
	}{
		{"plain", "2025-06-01 10:30:00", timePtr(time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC))},
		{"fractional", "2025-06-01 10:30:00.123456", timePtr(time.Date(2025, 6, 1, 10, 30, 0, 123456000, time.UTC))},
		{"null", nil, nil},
		{"empty", "", nil},
		{"garbage", "not-a-time", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := map[string]interface{}{"ts": tt.value}
			got := rowTime(row, "ts")
			if tt.want == nil {
				if got != nil {
					t.Errorf("rowTime() = %v, want nil", got)
				}
				return
			}
			if got == nil || !got.Equal(*tt.want) {
				t.Errorf("rowTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRowFloatFromDecimalString(t *testing.T) {
	// Aurora returns AVG() aggregates as decimal strings.
	row := map[string]interface{}{"avg": "2048.75"}
	if got := rowFloat(row, "avg"); got != 2048.75 {
		t.Errorf("rowFloat() = %v, want 2048.75", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello..."},
		{"tiny max", "hello", 2, "he"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.max); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
