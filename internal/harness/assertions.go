package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Subject, event.ID)
		}
	}
	return buf.String()
}

// eventMatches reports whether event has subject and, when set, id.
func eventMatches(event TraceEvent, subject, id string) bool {
	return event.Subject == subject && (id == "" || event.ID == id)
}

// assertTraceContains checks that a journaled message matches the subject,
// id and data subset.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if eventMatches(event, assertion.Subject, assertion.ID) && matchArgs(event.Data, assertion.Data) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s %s with data %v", assertion.Subject, assertion.ID, assertion.Data),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that subjects first appear in the given order.
// Entries don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		for _, want := range assertion.Subjects {
			subject, id, _ := strings.Cut(want, "/")
			if positions[want] == 0 && eventMatches(event, subject, id) {
				positions[want] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, want := range assertion.Subjects {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all entries present: %v", assertion.Subjects),
				Actual:   fmt.Sprintf("missing entry: %s", want),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Subjects); i++ {
		prev := assertion.Subjects[i-1]
		curr := assertion.Subjects[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", assertion.Subjects),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that subject (and id, when set) appears exactly
// Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if eventMatches(event, assertion.Subject, assertion.ID) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Subject),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks an entity's final state in the store.
func assertFinalState(result *Result, assertion Assertion) error {
	var (
		state  any
		exists bool
	)
	switch protocol.Kind(assertion.Kind) {
	case protocol.KindNode:
		state, exists = lookup(result.State.Nodes, assertion.ID)
	case protocol.KindMesh:
		state, exists = lookup(result.State.Meshes, assertion.ID)
	case protocol.KindPrimitive:
		state, exists = lookup(result.State.Primitives, assertion.ID)
	case protocol.KindMaterial:
		state, exists = lookup(result.State.Materials, assertion.ID)
	}

	if assertion.Absent {
		if exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s to be disposed", assertion.Kind, assertion.ID),
				Actual:   "entity exists",
			}
		}
		return nil
	}
	if !exists {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s to exist", assertion.Kind, assertion.ID),
			Actual:   "entity not found",
		}
	}

	actual, err := toMap(state)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if key, ok := firstMismatch(actual, assertion.Expect); !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s field %q = %v", assertion.Kind, assertion.ID, key, assertion.Expect[key]),
			Actual:   fmt.Sprintf("field %q = %v", key, actual[key]),
		}
	}
	return nil
}

func lookup[V any](m map[string]V, id string) (any, bool) {
	v, ok := m[id]
	return v, ok
}

// assertSummary checks the mirror summary against a subset.
func assertSummary(result *Result, assertion Assertion) error {
	actual, err := toMap(result.Summary)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	if key, ok := firstMismatch(actual, assertion.Expect); !ok {
		return &AssertionError{
			Type:     AssertSummary,
			Expected: fmt.Sprintf("%s = %v", key, assertion.Expect[key]),
			Actual:   fmt.Sprintf("%s = %v", key, actual[key]),
		}
	}
	return nil
}

// assertOutputContains checks that the render context sent a message with
// the subject and data subset.
func assertOutputContains(outputs []OutputEvent, assertion Assertion) error {
	for _, out := range outputs {
		if out.Subject == assertion.Subject && matchArgs(out.Data, assertion.Data) {
			return nil
		}
	}
	seen := make([]string, len(outputs))
	for i, out := range outputs {
		seen[i] = fmt.Sprintf("%s %v", out.Subject, out.Data)
	}
	return &AssertionError{
		Type:     AssertOutputContains,
		Expected: fmt.Sprintf("%s with data %v", assertion.Subject, assertion.Data),
		Actual:   fmt.Sprintf("outputs %v", seen),
	}
}

// assertErrorCount checks how many mirror failures were counted under a
// code.
func assertErrorCount(result *Result, assertion Assertion) error {
	got := result.Summary.Errors[protocol.ErrorCode(assertion.Code)]
	if got != assertion.Count {
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d %s errors", assertion.Count, assertion.Code),
			Actual:   fmt.Sprintf("%d (all: %v)", got, result.Summary.Errors),
		}
	}
	return nil
}

// assertJournalRow checks that exactly one journal row matches Where and
// contains the expected values. Queries use parameterized SQL.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertJournalRow(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertJournalRow,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertJournalRow,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := slices.Sorted(maps.Keys(where))
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool, float64:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := slices.Sorted(maps.Keys(where))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected YAML values with SQLite column values,
// which may come back as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// matchArgs checks if actual contains every expected key with an equal
// value (subset match). Nested objects are matched the same way.
func matchArgs(actual map[string]any, expected map[string]any) bool {
	_, ok := firstMismatch(actual, expected)
	return ok
}

// firstMismatch returns the first expected key, in sorted order, whose
// value actual does not match.
func firstMismatch(actual map[string]any, expected map[string]any) (string, bool) {
	for _, key := range slices.Sorted(maps.Keys(expected)) {
		actualVal, exists := actual[key]
		if !exists || !valuesEqual(actualVal, expected[key]) {
			return key, false
		}
	}
	return "", true
}

// valuesEqual compares a decoded JSON value with a YAML value. Both sides
// are normalized through JSON so numbers compare as float64; objects use
// subset semantics.
func valuesEqual(actual, expected any) bool {
	expected = normalize(expected)
	if em, ok := expected.(map[string]any); ok {
		am, ok := normalize(actual).(map[string]any)
		return ok && matchArgs(am, em)
	}
	return reflect.DeepEqual(normalize(actual), expected)
}

func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Journal *store.Store
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for journal_row assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertSummary:
			err = assertSummary(result, assertion)
		case AssertOutputContains:
			err = assertOutputContains(result.Outputs, assertion)
		case AssertErrorCount:
			err = assertErrorCount(result, assertion)
		case AssertJournalRow:
			if actx == nil || actx.Journal == nil {
				err = fmt.Errorf("assertion[%d]: journal_row requires a journal", i)
			} else {
				err = assertJournalRow(actx.Ctx, actx.Journal, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
