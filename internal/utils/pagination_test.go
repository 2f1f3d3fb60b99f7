package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		page, size string
		want       Page
	}{
		{"", "", Page{1, 20}},
		{"3", "10", Page{3, 10}},
		{"0", "-5", Page{1, 1}},
		{"abc", "1000", Page{1, 100}},
	}
	for _, tc := range cases {
		if got := ParsePage(tc.page, tc.size, 20, 100); got != tc.want {
			t.Fatalf("ParsePage(%q, %q) = %+v; want %+v", tc.page, tc.size, got, tc.want)
		}
	}
	if off := (Page{Number: 3, Size: 10}).Offset(); off != 20 {
		t.Fatalf("Offset = %d; want 20", off)
	}
}

func TestNewPageMeta(t *testing.T) {
	m := NewPageMeta(Page{Number: 1, Size: 2}, 5)
	if m.TotalPages != 3 || !m.HasNext || m.Total != 5 {
		t.Fatalf("meta = %+v", m)
	}
	m = NewPageMeta(Page{Number: 3, Size: 2}, 5)
	if m.HasNext {
		t.Fatalf("last page must not have next")
	}
	m = NewPageMeta(Page{Number: 1, Size: 20}, 0)
	if m.TotalPages != 0 || m.HasNext {
		t.Fatalf("empty meta = %+v", m)
	}
}
