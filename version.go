package go_nrepl

import (
	"strconv"
	"strings"
)

// Version is a component version reported by the describe op, for example
// nREPL itself, Clojure or the JVM.
type Version struct {
	Major       int
	Minor       int
	Incremental int
	Qualifier   string // e.g. "SNAPSHOT", "beta1"
	Raw         string
}

// ParseVersion parses "major.minor.incremental[-qualifier]". Missing or
// invalid numeric segments default to 0 and are logged.
//
// Examples:
//   - "1.0.0"            -> {1, 0, 0, ""}
//   - "1.12.0-alpha5"    -> {1, 12, 0, "alpha5"}
//   - "21.0.2"           -> {21, 0, 2, ""}
func ParseVersion(str string) Version {
	v := Version{Raw: str}
	core := str
	if i := strings.IndexAny(str, "-+"); i >= 0 {
		core, v.Qualifier = str[:i], str[i+1:]
	}
	segments := strings.Split(core, ".")
	targets := []*int{&v.Major, &v.Minor, &v.Incremental}
	for i, seg := range segments {
		if i >= len(targets) {
			break
		}
		n, err := strconv.Atoi(seg)
		if err != nil {
			Warning("Invalid version segment '%s' in '%s', defaulting to 0", seg, str)
			continue
		}
		*targets[i] = n
	}
	return v
}

// versionFromValue reads a describe "versions" entry. nREPL sends a dict
// with major/minor/incremental/qualifier/version-string keys; some servers
// send only a string.
func versionFromValue(val Value) Version {
	switch x := val.(type) {
	case String:
		return ParseVersion(string(x))
	case *Dict:
		m := &Message{x}
		if s := m.Str("version-string"); s != "" {
			return ParseVersion(s)
		}
		v := Version{Qualifier: m.Str("qualifier")}
		v.Major = intField(m, "major")
		v.Minor = intField(m, "minor")
		v.Incremental = intField(m, "incremental")
		v.Raw = strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Incremental)
		if v.Qualifier != "" {
			v.Raw += "-" + v.Qualifier
		}
		return v
	default:
		return Version{}
	}
}

// intField accepts either an integer or a numeric string.
func intField(m *Message, key string) int {
	if n, ok := m.Int(key); ok {
		return int(n)
	}
	return parseIntWithDefault(m.Str(key), 0)
}

// Compare returns -1, 0 or 1. Qualified versions sort before the release
// they qualify.
func (v Version) Compare(other Version) int {
	for _, d := range [][2]int{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Incremental, other.Incremental},
	} {
		if d[0] < d[1] {
			return -1
		}
		if d[0] > d[1] {
			return 1
		}
	}
	switch {
	case v.Qualifier == other.Qualifier:
		return 0
	case v.Qualifier == "":
		return 1
	case other.Qualifier == "":
		return -1
	default:
		return strings.Compare(v.Qualifier, other.Qualifier)
	}
}

// AtLeast reports whether v >= "major.minor.incremental".
func (v Version) AtLeast(str string) bool {
	return v.Compare(ParseVersion(str)) >= 0
}

func (v Version) String() string {
	return v.Raw
}
