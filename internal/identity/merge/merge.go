// Package merge reconciles a client-submitted partial payload against the
// stored canonical payload. Submitted data wins field-by-field, stored data
// is never silently dropped, and locale variants contributed by either side
// survive.
package merge

import (
	"strings"

	"idregistry/internal/identity/jsontree"
	pkgerrors "idregistry/pkg/errors"
)

// maxPasses bounds the fixpoint loop. The passes are monotonic (each write
// removes a difference class at its path) so convergence normally happens in
// one or two rounds; the bound guards against pathological payloads.
const maxPasses = 5

// Outcome reports what a reconciliation did.
type Outcome struct {
	Changed  bool
	Passes   int
	Residual bool // differences remained when the pass bound was hit
}

// Reconcile merges input into stored, mutating both trees:
//   - fields present only in input are written into stored
//   - conflicting values are overwritten with input's value, except an
//     explicit client null, which never erases a stored value
//   - locale-tagged array entries are unioned in both directions
//
// Trees that already compare clean are left untouched.
func Reconcile(input, stored *jsontree.Value) (Outcome, error) {
	diff := jsontree.Compare(input, stored)
	if diff.Clean() {
		return Outcome{}, nil
	}
	out := Outcome{Changed: true}
	for ; out.Passes < maxPasses && !diff.Clean(); out.Passes++ {
		if len(diff.Missing) > 0 {
			if err := applyMissingFields(stored, diff.Missing); err != nil {
				return out, err
			}
		}
		diff = jsontree.Compare(input, stored)
		if len(diff.Failing) > 0 {
			if err := applyFailingFields(input, stored, diff.Failing); err != nil {
				return out, err
			}
		}
		diff = jsontree.Compare(input, stored)
		if len(diff.Lengths) > 0 {
			applyMissingValues(input, stored, diff.Lengths)
		}
		diff = jsontree.Compare(input, stored)
	}
	out.Residual = !diff.Clean()
	return out, nil
}

// applyMissingFields writes each expected value into the tree that lacks
// it. Paths targeting an array element append to that array; paths with no
// parent target the root.
func applyMissingFields(stored *jsontree.Value, missing []jsontree.FieldDiff) error {
	for _, diff := range missing {
		parent, last, ok := diff.Path.Split()
		if !ok {
			return badPath(diff.Path)
		}
		if diff.Path.Bracketed() {
			if err := stored.AppendAt(parent, diff.Expected.Clone()); err != nil {
				return badPath(diff.Path)
			}
			continue
		}
		if err := stored.Put(parent, last.Key, diff.Expected.Clone()); err != nil {
			return badPath(diff.Path)
		}
	}
	return nil
}

// applyFailingFields resolves value conflicts. Array- and object-valued
// replacements overwrite both trees wholesale. For scalars the input value
// wins, unless input holds the null sentinel; then input is corrected to
// the stored value instead.
func applyFailingFields(input, stored *jsontree.Value, failing []jsontree.FieldDiff) error {
	for _, diff := range failing {
		switch {
		case diff.Expected.Kind() == jsontree.Array || diff.Expected.Kind() == jsontree.Object:
			if err := setBoth(input, stored, diff.Path, diff.Expected); err != nil {
				return err
			}
		case diff.Expected.IsNull():
			if err := setAt(input, diff.Path, diff.Actual); err != nil {
				return err
			}
		default:
			if err := setBoth(input, stored, diff.Path, diff.Expected); err != nil {
				return err
			}
		}
	}
	return nil
}

func setBoth(input, stored *jsontree.Value, path jsontree.Path, v *jsontree.Value) error {
	if err := setAt(stored, path, v); err != nil {
		return err
	}
	return setAt(input, path, v)
}

func setAt(tree *jsontree.Value, path jsontree.Path, v *jsontree.Value) error {
	if len(path) == 0 {
		return badPath(path)
	}
	if err := tree.SetAt(path, v.Clone()); err != nil {
		return badPath(path)
	}
	return nil
}

// applyMissingValues unions locale-tagged entries across both trees for
// every array whose lengths disagree. Entries without a locale tag are left
// alone; the next compare reports any remaining mismatch.
func applyMissingValues(input, stored *jsontree.Value, lengths []jsontree.LengthDiff) {
	for _, diff := range lengths {
		inputList, okIn := input.Resolve(diff.Path)
		storedList, okDB := stored.Resolve(diff.Path)
		if !okIn || !okDB || inputList.Kind() != jsontree.Array || storedList.Kind() != jsontree.Array {
			continue
		}
		unionLocales(inputList, storedList)
		unionLocales(storedList, inputList)
	}
}

// unionLocales appends to dst every entry of src whose locale is absent
// from dst.
func unionLocales(src, dst *jsontree.Value) {
	dstLocales := make(map[string]bool, dst.Len())
	for _, item := range dst.Items() {
		if locale, ok := localeOf(item); ok {
			dstLocales[locale] = true
		}
	}
	for _, item := range src.Items() {
		locale, ok := localeOf(item)
		if !ok || dstLocales[locale] {
			continue
		}
		dst.Append(item.Clone())
		dstLocales[locale] = true
	}
}

func localeOf(item *jsontree.Value) (string, bool) {
	field, ok := item.Get(jsontree.LocaleKey)
	if !ok || field.Kind() != jsontree.String {
		return "", false
	}
	return strings.ToLower(field.AsString()), true
}

func badPath(path jsontree.Path) error {
	return pkgerrors.New(pkgerrors.CodeInvalidInput, "bad path in merge").WithPath(path.String())
}
