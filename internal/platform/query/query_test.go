package query

import (
	"strings"
	"testing"
)

func TestBuilder_Empty(t *testing.T) {
	q := New("drug_inventory", "id, name")
	if got := q.CountSQL(); got != "SELECT COUNT(*) FROM drug_inventory WHERE 1=1" {
		t.Errorf("unexpected count sql: %s", got)
	}
	data := q.DataSQL()
	if !strings.Contains(data, "LIMIT $1 OFFSET $2") {
		t.Errorf("expected limit/offset placeholders, got %s", data)
	}
}

func TestBuilder_ExactAndContains(t *testing.T) {
	q := New("drug_inventory", "id, name")
	q.AddExact("status", "active")
	q.AddContains("name", "para")

	sql := q.CountSQL()
	if !strings.Contains(sql, "status = $1") {
		t.Errorf("missing exact clause: %s", sql)
	}
	if !strings.Contains(sql, "name ILIKE $2") {
		t.Errorf("missing contains clause: %s", sql)
	}
	args := q.CountArgs()
	if len(args) != 2 || args[1] != "%para%" {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestBuilder_ComparablePrefixes(t *testing.T) {
	cases := []struct {
		value  string
		wantOp string
		wantV  string
	}{
		{"gt5", ">", "5"},
		{"lt10", "<", "10"},
		{"ge2024-01-01", ">=", "2024-01-01"},
		{"le2024-12-31", "<=", "2024-12-31"},
		{"eq7", "=", "7"},
		{"7", "=", "7"},
	}
	for _, tc := range cases {
		q := New("t", "id")
		q.AddComparable("qty", tc.value)
		sql := q.CountSQL()
		if !strings.Contains(sql, "qty "+tc.wantOp+" $1") {
			t.Errorf("value %q: got sql %s", tc.value, sql)
		}
		if q.CountArgs()[0] != tc.wantV {
			t.Errorf("value %q: got arg %v", tc.value, q.CountArgs()[0])
		}
	}
}

func TestBuilder_ApplyParams_IgnoresUnknown(t *testing.T) {
	q := New("t", "id")
	q.ApplyParams(map[string]string{
		"name":    "asp",
		"unknown": "x",
	}, map[string]ParamConfig{
		"name": {Type: ParamContains, Column: "name"},
	})
	if len(q.CountArgs()) != 1 {
		t.Errorf("expected 1 arg, got %v", q.CountArgs())
	}
}

func TestBuilder_DataArgsAppendsLimitOffset(t *testing.T) {
	q := New("t", "id")
	q.AddExact("status", "active")
	args := q.DataArgs(20, 40)
	if len(args) != 3 || args[1] != 20 || args[2] != 40 {
		t.Errorf("unexpected data args: %v", args)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike("50%_a\\"); got != `50\%\_a\\` {
		t.Errorf("unexpected escape: %q", got)
	}
}
