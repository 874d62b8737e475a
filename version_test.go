package go_nrepl

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"1.0.0", Version{Major: 1, Raw: "1.0.0"}},
		{"1.12.0-alpha5", Version{Major: 1, Minor: 12, Qualifier: "alpha5", Raw: "1.12.0-alpha5"}},
		{"21.0.2", Version{Major: 21, Incremental: 2, Raw: "21.0.2"}},
		{"0.9", Version{Minor: 9, Raw: "0.9"}},
		{"1.x.3", Version{Major: 1, Incremental: 3, Raw: "1.x.3"}},
		{"", Version{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseVersion(tt.in); got != tt.want {
				t.Errorf("ParseVersion(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"0.9.9", "1.0.0", -1},
		{"1.2.0", "1.10.0", -1},
		{"1.0.0-SNAPSHOT", "1.0.0", -1},
		{"1.0.0", "1.0.0-beta1", 1},
	}

	for _, tt := range tests {
		if got := ParseVersion(tt.a).Compare(ParseVersion(tt.b)); got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if !ParseVersion("1.1.0").AtLeast("1.0.0") {
		t.Error("1.1.0 should be at least 1.0.0")
	}
}

func TestVersionFromValue(t *testing.T) {
	d := NewDict().
		Set("major", Int(1)).
		Set("minor", Int(3)).
		Set("incremental", Int(0)).
		Set("qualifier", String(""))
	if got := versionFromValue(d); got.Major != 1 || got.Minor != 3 || got.Raw != "1.3.0" {
		t.Errorf("versionFromValue(dict) = %+v", got)
	}

	d = NewDict().Set("version-string", String("1.12.1"))
	if got := versionFromValue(d); got.Minor != 12 || got.Incremental != 1 {
		t.Errorf("versionFromValue(version-string) = %+v", got)
	}

	if got := versionFromValue(String("17.0.9")); got.Major != 17 {
		t.Errorf("versionFromValue(string) = %+v", got)
	}
	if got := versionFromValue(Int(3)); got != (Version{}) {
		t.Errorf("versionFromValue(int) = %+v, want zero", got)
	}
}
