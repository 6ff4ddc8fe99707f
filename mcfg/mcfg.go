// Package mcfg holds runtime configuration as a flat string map, the way
// Server's m_mapConfiguration does in the original implementation this
// system was distilled from, but populated the way
// github.com/mediocregopher/mediocre-go-lib/mcfg.SourceCLI populates
// configuration: repeated "--key value" arguments.
//
// Unlike the teacher's SourceCLI, an unrecognized "--key value" pair is not
// an error here — it's kept verbatim and surfaced through CONFIG GET, per
// spec.
package mcfg

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Store holds configuration as key -> value, safe for concurrent access. A
// single Store is filled by CLI parsing and the optional config-file loader
// and read by the server, including CONFIG GET.
type Store struct {
	mu sync.RWMutex
	m  map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{m: map[string]string{}}
}

// ParseCLI parses args (normally os.Args[1:]) as repeated "--key value"
// pairs and merges them into the Store, overwriting any existing value for
// each key seen. Returns an error if a "--key" flag has no following value.
func (s *Store) ParseCLI(args []string) error {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || len(arg) <= 2 {
			return fmt.Errorf("unexpected argument %q, flags must be in --key value form", arg)
		}
		key := strings.ToLower(arg[2:])

		if i+1 >= len(args) {
			return fmt.Errorf("flag --%s given with no value", key)
		}
		i++
		s.Set(key, args[i])
	}
	return nil
}

// Set stores a single key/value pair, overwriting any previous value.
func (s *Store) Set(key, val string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[strings.ToLower(key)] = val
}

// SetDefault stores key/value only if key isn't already set.
func (s *Store) SetDefault(key, val string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[strings.ToLower(key)]; !ok {
		s.m[strings.ToLower(key)] = val
	}
}

// Get returns the raw string value for key, and whether it was set.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[strings.ToLower(key)]
	return v, ok
}

// String returns the value for key, or def if unset.
func (s *Store) String(key, def string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// Int returns the value for key parsed as an integer, or def if unset or
// unparseable.
func (s *Store) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the value for key parsed as a boolean, or def if unset or
// unparseable.
func (s *Store) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// All returns a copy of every key/value pair matching a Redis-style glob
// pattern ("*" matches anything, "" or "*" alone matches everything). Used
// by CONFIG GET.
func (s *Store) All(pattern string) map[string]string {
	re := globToRegexp(pattern)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for k, v := range s.m {
		if re == nil || re.MatchString(k) {
			out[k] = v
		}
	}
	return out
}

// globToRegexp translates a Redis KEYS/CONFIG GET glob (only "*" and "?" are
// treated specially, everything else is escaped) into a compiled regexp
// anchored at both ends. Returns nil (meaning "match everything") for an
// empty pattern. A pattern whose translation fails to compile yields a
// never-matching regexp ("match nothing") rather than a panic.
func globToRegexp(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return regexp.MustCompile("$.^") // matches nothing
	}
	return re
}

// GlobToRegexp exposes globToRegexp for use by other packages needing
// Redis-style glob matching (e.g. the value store's KEYS command), keeping
// the single translation rule named in spec.md §4.2 in one place.
func GlobToRegexp(pattern string) *regexp.Regexp {
	return globToRegexp(pattern)
}

// SnapshotPath joins the configured --dir and --dbfilename into a single
// path, or returns "" if either is unset.
func (s *Store) SnapshotPath() string {
	dir, ok := s.Get("dir")
	if !ok {
		return ""
	}
	file, ok := s.Get("dbfilename")
	if !ok {
		return ""
	}
	return filepath.Join(dir, file)
}
