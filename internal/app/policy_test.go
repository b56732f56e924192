package app

import "testing"

func TestShouldDiagnose(t *testing.T) {
	cases := []struct {
		count int
		want  bool
	}{
		{0, false},
		{1, false},
		{2, false},
		{3, true},
		{4, true},
		{10, true},
	}
	for _, tc := range cases {
		if got := ShouldDiagnose(tc.count); got != tc.want {
			t.Errorf("ShouldDiagnose(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}
