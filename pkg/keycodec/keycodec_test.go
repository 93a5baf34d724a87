package keycodec

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]Value{
		{Int64(42)},
		{Int64(-42)},
		{Varchar([]byte("hello"))},
		{Varchar([]byte(""))},
		{Varchar(bytes.Repeat([]byte("x"), 8))},
		{Varchar(bytes.Repeat([]byte("y"), 17))},
		{Double(3.14)},
		{Double(-3.14)},
		{Double(0)},
		{Int64(7), Varchar([]byte("abc")), Double(-1.5)},
	}

	for i, c := range cases {
		enc := Encode(c)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if len(dec) != len(c) {
			t.Fatalf("case %d: got %d values, want %d", i, len(dec), len(c))
		}
		for j := range c {
			if dec[j].Type != c[j].Type {
				t.Fatalf("case %d val %d: type mismatch", i, j)
			}
			switch c[j].Type {
			case TypeInt64:
				if dec[j].I64 != c[j].I64 {
					t.Errorf("case %d val %d: I64 got %d want %d", i, j, dec[j].I64, c[j].I64)
				}
			case TypeVarchar:
				if !bytes.Equal(dec[j].Str, c[j].Str) {
					t.Errorf("case %d val %d: Str got %q want %q", i, j, dec[j].Str, c[j].Str)
				}
			case TypeDouble:
				if dec[j].F64 != c[j].F64 {
					t.Errorf("case %d val %d: F64 got %v want %v", i, j, dec[j].F64, c[j].F64)
				}
			}
		}
	}
}

func TestInt64OrderingMatchesByteOrdering(t *testing.T) {
	vals := []int64{math.MinInt64 / 2, -1000, -1, 0, 1, 1000, math.MaxInt64 / 2}
	for i := range vals {
		for j := range vals {
			want := cmpInt64(vals[i], vals[j])
			got := Compare([]Value{Int64(vals[i])}, []Value{Int64(vals[j])})
			if sign(got) != sign(want) {
				t.Errorf("Compare(%d,%d) = %d, want sign %d", vals[i], vals[j], got, want)
			}
		}
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	default:
		return 0
	}
}

func TestVarcharOrderingMatchesByteOrdering(t *testing.T) {
	strs := []string{"", "a", "aa", "ab", "b", "aaaaaaaa", "aaaaaaaaa", "aaaaaaaab", "zzzzzzzzzzzzzzzzzzzz"}
	rnd := rand.New(rand.NewSource(1))

	sorted := append([]string(nil), strs...)
	sort.Strings(sorted)

	encoded := make([][]byte, len(strs))
	for i, s := range strs {
		encoded[i] = Encode([]Value{Varchar([]byte(s))})
	}

	idx := make([]int, len(strs))
	for i := range idx {
		idx[i] = i
	}
	rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	sort.Slice(idx, func(i, j int) bool {
		return bytes.Compare(encoded[idx[i]], encoded[idx[j]]) < 0
	})

	for i, want := range sorted {
		if strs[idx[i]] != want {
			t.Fatalf("byte-order sort mismatch at %d: got %q want %q", i, strs[idx[i]], want)
		}
	}
}
