package utils

import "testing"

func TestParsePage(t *testing.T) {
	cases := []struct {
		number, size string
		want         Page
	}{
		{"", "", Page{1, DefaultPageSize}},
		{"3", "50", Page{3, 50}},
		{"-3", "9999", Page{1, MaxPageSize}},
		{"0", "0", Page{1, 1}},
		{"x", " 10", Page{1, DefaultPageSize}},
		{"99999999999999999999", "5", Page{1, 5}},
	}
	for _, tc := range cases {
		if got := ParsePage(tc.number, tc.size); got != tc.want {
			t.Errorf("ParsePage(%q, %q) = %+v, want %+v", tc.number, tc.size, got, tc.want)
		}
	}
}

func TestPage_Bounds(t *testing.T) {
	cases := []struct {
		page     Page
		off, lim int
	}{
		{Page{0, 0}, 0, DefaultPageSize},
		{Page{1, 10}, 0, 10},
		{Page{3, 5}, 10, 5},
		{Page{-2, -1}, 0, DefaultPageSize},
	}
	for _, tc := range cases {
		off, lim := tc.page.Bounds()
		if off != tc.off || lim != tc.lim {
			t.Errorf("%+v.Bounds() = %d,%d; want %d,%d", tc.page, off, lim, tc.off, tc.lim)
		}
	}
}

func TestPage_TotalPagesAndHasNext(t *testing.T) {
	cases := []struct {
		page    Page
		total   int64
		pages   int
		hasNext bool
	}{
		{Page{1, 20}, 0, 0, false},
		{Page{1, 20}, 20, 1, false},
		{Page{1, 20}, 21, 2, true},
		{Page{2, 20}, 21, 2, false},
		{Page{1, 0}, 5, 0, false},
	}
	for _, tc := range cases {
		if got := tc.page.TotalPages(tc.total); got != tc.pages {
			t.Errorf("%+v.TotalPages(%d) = %d, want %d", tc.page, tc.total, got, tc.pages)
		}
		if got := tc.page.HasNext(tc.total); got != tc.hasNext {
			t.Errorf("%+v.HasNext(%d) = %v, want %v", tc.page, tc.total, got, tc.hasNext)
		}
	}
}
