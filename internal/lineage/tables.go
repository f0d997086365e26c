package lineage

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/lineage/internal/model"
)

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// TableRegistry is the runtime allow-list of application tables lineage may
// reference. A registry with no tables accepts any well-formed name.
type TableRegistry struct {
	allowed map[string]struct{}
	names   []string
}

// NewTableRegistry builds an allow-list from tables. Names are trimmed and
// lower-cased; malformed names are rejected.
func NewTableRegistry(tables []string) (*TableRegistry, error) {
	r := &TableRegistry{allowed: make(map[string]struct{}, len(tables))}
	for _, t := range tables {
		name := strings.ToLower(strings.TrimSpace(t))
		if !tableNamePattern.MatchString(name) {
			return nil, model.NewValidationError("table", "%q is not a valid table name", t)
		}
		if _, dup := r.allowed[name]; dup {
			continue
		}
		r.allowed[name] = struct{}{}
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Open reports whether the registry accepts any well-formed table name.
func (r *TableRegistry) Open() bool {
	return r == nil || len(r.allowed) == 0
}

// Tables returns the allowed names in sorted order, or nil when open.
func (r *TableRegistry) Tables() []string {
	if r.Open() {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Check validates table against the allow-list.
func (r *TableRegistry) Check(table string) error {
	if table == "" {
		return model.NewValidationError("table", "required")
	}
	if !tableNamePattern.MatchString(table) {
		return model.NewValidationError("table", "%q is not a valid table name", table)
	}
	if r.Open() {
		return nil
	}
	if _, ok := r.allowed[table]; !ok {
		return model.NewValidationError("table", "%q is not a tracked table", table)
	}
	return nil
}

// CheckRef validates a record reference: an allowed table and a positive id.
func (r *TableRegistry) CheckRef(ref model.RecordRef) error {
	if err := r.Check(ref.Table); err != nil {
		return err
	}
	if ref.ID <= 0 {
		return model.NewValidationError("record_id", "must be positive, got %d", ref.ID)
	}
	return nil
}
