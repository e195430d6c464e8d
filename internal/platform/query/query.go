// Package query holds the state of a record browser (search text, named
// filters, sort, page window) and converts it to and from the flat
// string-keyed form used in shareable URLs.
//
// All operations on a Schema are pure: Decode, Encode and ApplyUpdate never
// mutate their inputs, and Decode(Encode(s)) equals s for every state
// produced by the schema.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Reserved flat keys. Filter names may not reuse them.
const (
	KeySearch    = "q"
	KeySort      = "sort"
	KeyDirection = "dir"
	KeyPage      = "page"
	KeyPageSize  = "size"
)

// DateLayout is the canonical form of Date filter values.
const DateLayout = "2006-01-02"

// DefaultPageSizes is the page-size set used when a Config does not declare one.
var DefaultPageSizes = []int{10, 25, 50, 100}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) valid() bool { return d == Asc || d == Desc }

// FilterKind determines how a filter value is parsed and normalized.
type FilterKind int

const (
	String FilterKind = iota
	Number
	Bool
	Date
)

// Filter declares one named filter a browser accepts.
type Filter struct {
	Name string
	Kind FilterKind
	// Options restricts a String filter to an enumerated set.
	Options []string
}

// normalize returns the canonical form of raw, or false when raw is not a
// valid value for the filter.
func (f Filter) normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	switch f.Kind {
	case Number:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	case Date:
		d, err := time.Parse(DateLayout, raw)
		if err != nil {
			return "", false
		}
		return d.Format(DateLayout), true
	default:
		if len(f.Options) == 0 {
			return raw, true
		}
		for _, opt := range f.Options {
			if raw == opt {
				return raw, true
			}
		}
		return "", false
	}
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// State is the complete description of what a browser should display.
type State struct {
	Search        string
	Filters       map[string]string
	SortKey       string
	SortDirection Direction
	Page          int
	PageSize      int
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.Filters = make(map[string]string, len(s.Filters))
	for k, v := range s.Filters {
		c.Filters[k] = v
	}
	return c
}

// Filter returns the value of the named filter.
func (s State) Filter(name string) (string, bool) {
	v, ok := s.Filters[name]
	return v, ok
}

// Equal reports whether s and o describe the same query. A nil and an empty
// filter map are equal.
func (s State) Equal(o State) bool {
	if s.Search != o.Search || s.SortKey != o.SortKey || s.SortDirection != o.SortDirection ||
		s.Page != o.Page || s.PageSize != o.PageSize || len(s.Filters) != len(o.Filters) {
		return false
	}
	for k, v := range s.Filters {
		if ov, ok := o.Filters[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (s State) String() string {
	keys := make([]string, 0, len(s.Filters))
	for k := range s.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+s.Filters[k])
	}
	return fmt.Sprintf("search=%q filters=[%s] sort=%s %s page=%d size=%d",
		s.Search, strings.Join(parts, ","), s.SortKey, s.SortDirection, s.Page, s.PageSize)
}

// ---------------------------------------------------------------------------
// Patch
// ---------------------------------------------------------------------------

// Patch is a partial update of a State. Nil fields are left untouched. In
// Filters an empty value clears that filter.
type Patch struct {
	Search        *string
	Filters       map[string]string
	SortKey       *string
	SortDirection *Direction
	Page          *int
	PageSize      *int
}

func SetSearch(s string) Patch { return Patch{Search: &s} }

func SetFilter(name, value string) Patch {
	return Patch{Filters: map[string]string{name: value}}
}

func ClearFilter(name string) Patch { return SetFilter(name, "") }

func SetSort(key string, dir Direction) Patch {
	return Patch{SortKey: &key, SortDirection: &dir}
}

func SetPage(n int) Patch { return Patch{Page: &n} }

func SetPageSize(n int) Patch { return Patch{PageSize: &n} }

// touchesQuery reports whether the patch changes what is matched or how it
// is ordered, which invalidates the current page position.
func (p Patch) touchesQuery() bool {
	return p.Search != nil || len(p.Filters) > 0 || p.SortKey != nil || p.SortDirection != nil
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Config declares the filters, sort keys and defaults of one browser.
type Config struct {
	Filters          []Filter
	SortKeys         []string
	DefaultSort      string
	DefaultDirection Direction
	DefaultPageSize  int
	PageSizes        []int
}

// Schema is the codec of one browser instance.
type Schema struct {
	filters   map[string]Filter
	sortKeys  map[string]bool
	pageSizes []int
	defaults  State
}

// NewSchema validates cfg and builds its codec.
func NewSchema(cfg Config) (*Schema, error) {
	s := &Schema{
		filters:  make(map[string]Filter, len(cfg.Filters)),
		sortKeys: make(map[string]bool, len(cfg.SortKeys)),
	}
	for _, f := range cfg.Filters {
		switch f.Name {
		case "", KeySearch, KeySort, KeyDirection, KeyPage, KeyPageSize:
			return nil, fmt.Errorf("filter name %q is reserved", f.Name)
		}
		if _, dup := s.filters[f.Name]; dup {
			return nil, fmt.Errorf("duplicate filter %q", f.Name)
		}
		s.filters[f.Name] = f
	}
	for _, k := range cfg.SortKeys {
		s.sortKeys[k] = true
	}
	if !s.sortKeys[cfg.DefaultSort] {
		return nil, fmt.Errorf("default sort %q is not a declared sort key", cfg.DefaultSort)
	}

	s.pageSizes = cfg.PageSizes
	if len(s.pageSizes) == 0 {
		s.pageSizes = DefaultPageSizes
	}
	dir := cfg.DefaultDirection
	if dir == "" {
		dir = Desc
	}
	if !dir.valid() {
		return nil, fmt.Errorf("invalid default direction %q", dir)
	}
	size := cfg.DefaultPageSize
	if size == 0 {
		size = s.pageSizes[0]
	}
	if !s.allowedSize(size) {
		return nil, fmt.Errorf("default page size %d is not in %v", size, s.pageSizes)
	}

	s.defaults = State{
		Filters:       map[string]string{},
		SortKey:       cfg.DefaultSort,
		SortDirection: dir,
		Page:          1,
		PageSize:      size,
	}
	return s, nil
}

// MustSchema is NewSchema for package-level declarations; it panics on an
// invalid Config.
func MustSchema(cfg Config) *Schema {
	s, err := NewSchema(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Defaults returns the state a browser mounts with.
func (sc *Schema) Defaults() State { return sc.defaults.Clone() }

// PageSizes returns the allowed page sizes.
func (sc *Schema) PageSizes() []int { return append([]int(nil), sc.pageSizes...) }

// Filters returns the declared filters ordered by name.
func (sc *Schema) Filters() []Filter {
	out := make([]Filter, 0, len(sc.filters))
	for _, f := range sc.filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (sc *Schema) allowedSize(n int) bool {
	for _, s := range sc.pageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// Decode reads a state from its flat form. Missing keys take the defaults,
// unknown keys are ignored and malformed values fall back to defaults.
func (sc *Schema) Decode(values url.Values) State {
	st := sc.Defaults()
	st.Search = values.Get(KeySearch)

	for name, f := range sc.filters {
		if v, ok := f.normalize(values.Get(name)); ok {
			st.Filters[name] = v
		}
	}
	if k := values.Get(KeySort); sc.sortKeys[k] {
		st.SortKey = k
	}
	if d := Direction(values.Get(KeyDirection)); d.valid() {
		st.SortDirection = d
	}
	if n, err := strconv.Atoi(values.Get(KeyPage)); err == nil && n >= 1 {
		st.Page = n
	}
	if n, err := strconv.Atoi(values.Get(KeyPageSize)); err == nil && sc.allowedSize(n) {
		st.PageSize = n
	}
	return st
}

// Encode renders st in flat form, omitting every field equal to its default.
func (sc *Schema) Encode(st State) url.Values {
	v := url.Values{}
	if st.Search != "" {
		v.Set(KeySearch, st.Search)
	}
	for name, val := range st.Filters {
		v.Set(name, val)
	}
	if st.SortKey != sc.defaults.SortKey {
		v.Set(KeySort, st.SortKey)
	}
	if st.SortDirection != sc.defaults.SortDirection {
		v.Set(KeyDirection, string(st.SortDirection))
	}
	if st.Page != 1 {
		v.Set(KeyPage, strconv.Itoa(st.Page))
	}
	if st.PageSize != sc.defaults.PageSize {
		v.Set(KeyPageSize, strconv.Itoa(st.PageSize))
	}
	return v
}

// Params renders every field of st, defaults included, for a data-source
// request whose server does not share this schema's defaults.
func (sc *Schema) Params(st State) url.Values {
	v := sc.Encode(st)
	v.Set(KeySort, st.SortKey)
	v.Set(KeyDirection, string(st.SortDirection))
	v.Set(KeyPage, strconv.Itoa(st.Page))
	v.Set(KeyPageSize, strconv.Itoa(st.PageSize))
	return v
}

// String renders st as a URL query component.
func (sc *Schema) String(st State) string {
	return sc.Encode(st).Encode()
}

// Parse reads a URL query component. Malformed pairs are dropped.
func (sc *Schema) Parse(raw string) State {
	values, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	return sc.Decode(values)
}

// ApplyUpdate merges p into cur. Any change to search, filters or sort, and
// an accepted page-size change, move the result back to page 1 unless p sets
// the page itself. Values the schema does not accept are ignored.
func (sc *Schema) ApplyUpdate(cur State, p Patch) State {
	next := cur.Clone()

	if p.Search != nil {
		next.Search = *p.Search
	}
	for name, raw := range p.Filters {
		f, ok := sc.filters[name]
		if !ok {
			continue
		}
		if strings.TrimSpace(raw) == "" {
			delete(next.Filters, name)
			continue
		}
		if v, ok := f.normalize(raw); ok {
			next.Filters[name] = v
		}
	}
	if p.SortKey != nil && sc.sortKeys[*p.SortKey] {
		next.SortKey = *p.SortKey
	}
	if p.SortDirection != nil && p.SortDirection.valid() {
		next.SortDirection = *p.SortDirection
	}
	resized := p.PageSize != nil && sc.allowedSize(*p.PageSize)
	if resized {
		next.PageSize = *p.PageSize
	}

	switch {
	case p.Page != nil:
		next.Page = *p.Page
		if next.Page < 1 {
			next.Page = 1
		}
	case p.touchesQuery() || resized:
		next.Page = 1
	}
	return next
}
