package query

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
	"time"
)

type decimalLike struct{ v float64 }

func (d decimalLike) Float64() float64 { return d.v }

func TestFromDriverMapsScannedValues(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		raw    any
		dbType string
		want   Value
	}{
		{name: "nil", raw: nil, want: Null()},
		{name: "int64", raw: int64(7), dbType: "INT8", want: Int(7)},
		{name: "int32", raw: int32(-3), want: Int(-3)},
		{name: "uint64 overflow", raw: uint64(math.MaxUint64), want: Float(float64(uint64(math.MaxUint64)))},
		{name: "float", raw: 2.5, want: Float(2.5)},
		{name: "bool", raw: true, want: Bool(true)},
		{name: "date", raw: day, dbType: "date", want: Date(day)},
		{name: "timestamp", raw: day, dbType: "TIMESTAMPTZ", want: Timestamp(day)},
		{name: "numeric bytes", raw: []byte("12.50"), dbType: "NUMERIC", want: Float(12.5)},
		{name: "text bytes", raw: []byte("Ada"), dbType: "TEXT", want: Text("Ada")},
		{name: "decimal interface", raw: decimalLike{v: 3.25}, dbType: "DECIMAL(10,2)", want: Float(3.25)},
		{name: "big int", raw: big.NewInt(99), dbType: "HUGEINT", want: Int(99)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromDriver(tc.raw, tc.dbType)
			if got.Kind() != tc.want.Kind() || got.String() != tc.want.String() {
				t.Fatalf("FromDriver(%#v, %q) = %s(%s), want %s(%s)", tc.raw, tc.dbType, got.Kind(), got, tc.want.Kind(), tc.want)
			}
		})
	}
}

func TestValueMarshalJSON(t *testing.T) {
	row := Row{
		"id":      Int(1),
		"name":    Text("Ada"),
		"score":   Float(math.NaN()),
		"active":  Bool(false),
		"missing": Null(),
		"joined":  Date(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)),
	}
	payload, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"active":false,"id":1,"joined":"2024-01-02","missing":null,"name":"Ada","score":null}`
	if string(payload) != want {
		t.Fatalf("json = %s, want %s", payload, want)
	}
}
