package ordering

import "testing"

func TestExtractIndex(t *testing.T) {
	cases := []struct {
		path  string
		want  uint64
		found bool
	}{
		{"/shots/shot_0.png", 0, true},
		{"/shots/0007.png", 7, true},
		{"/shots/step12_v3.png", 12, true},
		{"/run42/screen.png", 0, false},
		{"cover.png", 0, false},
		{"img-18446744073709551615.png", 18446744073709551615, true},
		{"img-18446744073709551616.png", 0, false},
		{"done", 0, false},
	}
	for _, tc := range cases {
		got, ok := ExtractIndex(tc.path)
		if ok != tc.found || got != tc.want {
			t.Fatalf("ExtractIndex(%q) = %d,%v want %d,%v", tc.path, got, ok, tc.want, tc.found)
		}
	}
}
