package jsontree

// LocaleKey tags entries of multi-lingual arrays. Arrays whose elements all
// carry this key are matched by locale, never by position.
const LocaleKey = "language"

// FieldDiff reports one field-level difference between the submitted tree
// (expected) and the stored tree (actual).
type FieldDiff struct {
	Path     Path
	Expected *Value
	Actual   *Value
}

// LengthDiff reports an array whose sizes differ without a clean
// field-level mapping.
type LengthDiff struct {
	Path     Path
	Expected int
	Actual   int
}

// Diff is the outcome of a lenient comparison, partitioned into the three
// classes the merge passes consume.
type Diff struct {
	// Missing lists paths present in the submitted tree but absent from
	// the stored tree.
	Missing []FieldDiff
	// Failing lists paths present in both trees with different values.
	Failing []FieldDiff
	// Lengths lists arrays with mismatched element counts.
	Lengths []LengthDiff
}

// Clean reports a comparison with no differences.
func (d *Diff) Clean() bool {
	return len(d.Missing) == 0 && len(d.Failing) == 0 && len(d.Lengths) == 0
}

// Compare walks both trees leniently: keys present only in stored are
// tolerated, array element order is ignored where elements can be matched
// by identity, and size mismatches are reported as their own class rather
// than as field failures.
func Compare(input, stored *Value) *Diff {
	d := &Diff{}
	compareNodes(nil, input, stored, d)
	return d
}

func compareNodes(path Path, expected, actual *Value, d *Diff) {
	if expected.IsNull() && actual.IsNull() {
		return
	}
	if expected == nil {
		expected = NewNull()
	}
	if actual == nil {
		actual = NewNull()
	}
	if expected.Kind() != actual.Kind() {
		d.Failing = append(d.Failing, FieldDiff{Path: path, Expected: expected, Actual: actual})
		return
	}
	switch expected.Kind() {
	case Null:
	case Bool, Number, String:
		if !expected.Equal(actual) {
			d.Failing = append(d.Failing, FieldDiff{Path: path, Expected: expected, Actual: actual})
		}
	case Object:
		for _, key := range expected.Keys() {
			expChild, _ := expected.Get(key)
			actChild, ok := actual.Get(key)
			if !ok {
				d.Missing = append(d.Missing, FieldDiff{Path: path.Child(KeySeg(key)), Expected: expChild})
				continue
			}
			compareNodes(path.Child(KeySeg(key)), expChild, actChild, d)
		}
	case Array:
		compareArrays(path, expected, actual, d)
	}
}

func compareArrays(path Path, expected, actual *Value, d *Diff) {
	expItems := expected.Items()
	actItems := actual.Items()
	if len(expItems) != len(actItems) {
		d.Lengths = append(d.Lengths, LengthDiff{Path: path, Expected: len(expItems), Actual: len(actItems)})
		return
	}
	if key := uniqueMatchKey(expected, actual); key != "" {
		for _, expItem := range expItems {
			field, _ := expItem.Get(key)
			seg := MatchSeg(key, field.AsString())
			actItem, ok := actual.Resolve(Path{seg})
			if !ok {
				d.Missing = append(d.Missing, FieldDiff{Path: path.Child(seg), Expected: expItem})
				continue
			}
			compareNodes(path.Child(seg), expItem, actItem, d)
		}
		return
	}
	if allScalars(expItems) && allScalars(actItems) {
		if !scalarMultisetEqual(expItems, actItems) {
			d.Failing = append(d.Failing, FieldDiff{Path: path, Expected: expected, Actual: actual})
		}
		return
	}
	for i := range expItems {
		compareNodes(path.Child(IndexSeg(i)), expItems[i], actItems[i], d)
	}
}

// uniqueMatchKey picks the identity key for arrays of objects: the locale
// key when every element on both sides carries it uniquely, otherwise the
// first key of the first expected element with that property.
func uniqueMatchKey(expected, actual *Value) string {
	first := expected.Items()
	if len(first) == 0 || first[0].Kind() != Object {
		return ""
	}
	candidates := []string{LocaleKey}
	for _, k := range first[0].Keys() {
		if k != LocaleKey {
			candidates = append(candidates, k)
		}
	}
	for _, key := range candidates {
		if keyIsUnique(expected, key) && keyIsUnique(actual, key) {
			return key
		}
	}
	return ""
}

func keyIsUnique(arr *Value, key string) bool {
	seen := make(map[string]bool, arr.Len())
	for _, item := range arr.Items() {
		if item.Kind() != Object {
			return false
		}
		field, ok := item.Get(key)
		if !ok || field.Kind() != String {
			return false
		}
		if seen[field.AsString()] {
			return false
		}
		seen[field.AsString()] = true
	}
	return true
}

func allScalars(items []*Value) bool {
	for _, item := range items {
		if !item.Scalar() {
			return false
		}
	}
	return true
}

func scalarMultisetEqual(a, b []*Value) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, item := range a {
		for i, other := range b {
			if !used[i] && item.Equal(other) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}
