package dsl

import (
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"evalplatform/internal/apierrors"
)

const supportedVersion = "0.1"

// rawAssertion is the loose shape an assertion decodes into straight out
// of encoding/json, before operator/shorthand normalization.
type rawAssertion struct {
	DiffType        string         `json:"diff_type"`
	Entity          string         `json:"entity"`
	Where           map[string]any `json:"where"`
	Ignore          []string       `json:"ignore"`
	ExpectedCount   any            `json:"expected_count"`
	ExpectedChanges map[string]any `json:"expected_changes"`
}

func (a rawAssertion) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.DiffType, validation.Required, validation.In(
			string(DiffAdded), string(DiffRemoved), string(DiffChanged), string(DiffUnchanged),
		)),
		validation.Field(&a.Entity, validation.Required),
		validation.Field(&a.ExpectedChanges, validation.By(requiredForChanged(a.DiffType))),
	)
}

// requiredForChanged enforces the "expected_changes required when
// diff_type=changed" cross-field rule as an ozzo-validation Rule, the
// same mechanism the rest of this codebase uses for struct validation.
func requiredForChanged(diffType string) validation.RuleFunc {
	return func(value any) error {
		changes, _ := value.(map[string]any)
		if diffType == string(DiffChanged) && len(changes) == 0 {
			return fmt.Errorf("expected_changes is required for a changed assertion")
		}
		return nil
	}
}

// rawSpec is the loose top-level document shape.
type rawSpec struct {
	Version      string              `json:"version"`
	Strict       *bool               `json:"strict"`
	IgnoreFields map[string][]string `json:"ignore_fields"`
	Assertions   []rawAssertion      `json:"assertions"`
}

func (r rawSpec) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Version, validation.Required, validation.In(supportedVersion)),
		validation.Field(&r.Assertions, validation.Required, validation.Length(1, 0)),
	)
}

// Compile validates doc against the assertion-spec schema and normalizes
// it into a canonical Spec containing only predicate maps. Compilation is
// a pure function of its input: the same document always compiles to an
// identical Spec.
func Compile(doc map[string]any) (*Spec, error) {
	raw, err := decodeRawSpec(doc)
	if err != nil {
		return nil, err
	}
	if err := raw.Validate(); err != nil {
		return nil, apierrors.BadRequest(err.Error())
	}
	for i, a := range raw.Assertions {
		if err := a.Validate(); err != nil {
			return nil, apierrors.BadRequest(fmt.Sprintf("assertion %d: %s", i, err.Error()))
		}
	}

	spec := &Spec{
		Version: raw.Version,
		Strict:  true,
	}
	if raw.Strict != nil {
		spec.Strict = *raw.Strict
	}
	if global, ok := raw.IgnoreFields["global"]; ok {
		spec.IgnoreFields.Global = global
	}
	if len(raw.IgnoreFields) > 0 {
		spec.IgnoreFields.PerEntity = make(map[string][]string, len(raw.IgnoreFields))
		for entity, cols := range raw.IgnoreFields {
			if entity == "global" {
				continue
			}
			spec.IgnoreFields.PerEntity[entity] = cols
		}
	}

	for i, a := range raw.Assertions {
		assertion, err := normalizeAssertion(i, a)
		if err != nil {
			return nil, err
		}
		spec.Assertions = append(spec.Assertions, assertion)
	}
	return spec, nil
}

func decodeRawSpec(doc map[string]any) (rawSpec, error) {
	allowed := map[string]bool{"version": true, "strict": true, "ignore_fields": true, "assertions": true}
	for k := range doc {
		if !allowed[k] {
			return rawSpec{}, apierrors.BadRequest(fmt.Sprintf("unknown top-level key %q", k))
		}
	}

	var raw rawSpec
	if v, ok := doc["version"].(string); ok {
		raw.Version = v
	}
	if v, ok := doc["strict"].(bool); ok {
		raw.Strict = &v
	}
	if v, ok := doc["ignore_fields"].(map[string]any); ok {
		raw.IgnoreFields = make(map[string][]string, len(v))
		for entity, colsAny := range v {
			cols, err := toStringSlice(colsAny)
			if err != nil {
				return rawSpec{}, apierrors.BadRequest(fmt.Sprintf("ignore_fields.%s: %s", entity, err))
			}
			raw.IgnoreFields[entity] = cols
		}
	}
	assertionsAny, ok := doc["assertions"].([]any)
	if !ok {
		return rawSpec{}, apierrors.BadRequest("assertions must be an array")
	}
	for i, aAny := range assertionsAny {
		aMap, ok := aAny.(map[string]any)
		if !ok {
			return rawSpec{}, apierrors.BadRequest(fmt.Sprintf("assertion %d must be an object", i))
		}
		ra, err := decodeRawAssertion(aMap)
		if err != nil {
			return rawSpec{}, apierrors.BadRequest(fmt.Sprintf("assertion %d: %s", i, err))
		}
		raw.Assertions = append(raw.Assertions, ra)
	}
	return raw, nil
}

func decodeRawAssertion(m map[string]any) (rawAssertion, error) {
	allowed := map[string]bool{
		"diff_type": true, "entity": true, "where": true, "ignore": true,
		"expected_count": true, "expected_changes": true,
	}
	for k := range m {
		if !allowed[k] {
			return rawAssertion{}, fmt.Errorf("unknown key %q", k)
		}
	}
	var ra rawAssertion
	if v, ok := m["diff_type"].(string); ok {
		ra.DiffType = v
	}
	if v, ok := m["entity"].(string); ok {
		ra.Entity = v
	}
	if v, ok := m["where"].(map[string]any); ok {
		ra.Where = v
	}
	if v, ok := m["ignore"]; ok {
		cols, err := toStringSlice(v)
		if err != nil {
			return rawAssertion{}, fmt.Errorf("ignore: %w", err)
		}
		ra.Ignore = cols
	}
	ra.ExpectedCount = m["expected_count"]
	if v, ok := m["expected_changes"].(map[string]any); ok {
		ra.ExpectedChanges = v
	}
	return ra, nil
}

func toStringSlice(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of strings")
	}
	out := make([]string, len(list))
	for i, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		out[i] = s
	}
	return out, nil
}

func normalizeAssertion(index int, ra rawAssertion) (Assertion, error) {
	a := Assertion{
		Index:    index,
		DiffType: DiffType(ra.DiffType),
		Entity:   ra.Entity,
		Ignore:   ra.Ignore,
	}

	if len(ra.Where) > 0 {
		a.Where = make(map[string]Predicate, len(ra.Where))
		for field, raw := range ra.Where {
			p, err := normalizePredicate(raw)
			if err != nil {
				return Assertion{}, apierrors.BadRequest(fmt.Sprintf("assertion %d: where.%s: %s", index, field, err))
			}
			a.Where[field] = p
		}
	}

	if ra.ExpectedCount != nil {
		count, err := normalizeCount(ra.ExpectedCount)
		if err != nil {
			return Assertion{}, apierrors.BadRequest(fmt.Sprintf("assertion %d: expected_count: %s", index, err))
		}
		a.ExpectedCount = count
	}

	if len(ra.ExpectedChanges) > 0 {
		a.ExpectedChanges = make(map[string]ChangeExpectation, len(ra.ExpectedChanges))
		for field, raw := range ra.ExpectedChanges {
			ce, err := normalizeChangeExpectation(raw)
			if err != nil {
				return Assertion{}, apierrors.BadRequest(fmt.Sprintf("assertion %d: expected_changes.%s: %s", index, field, err))
			}
			a.ExpectedChanges[field] = ce
		}
	}

	return a, nil
}

// normalizePredicate folds a where/from/to entry into a Predicate. A bare
// scalar becomes {eq: value}; a map is interpreted as a conjunction of
// operator checks, every key of which must be a known operator.
func normalizePredicate(raw any) (Predicate, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Predicate{Checks: []Check{{Op: OpEq, Operand: FromAny(raw)}}}, nil
	}
	if len(m) == 0 {
		return Predicate{}, fmt.Errorf("predicate object must not be empty")
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	checks := make([]Check, 0, len(m))
	for _, key := range keys {
		op := Operator(key)
		if !knownOperators[op] {
			return Predicate{}, fmt.Errorf("unknown operator %q", key)
		}
		checks = append(checks, Check{Op: op, Operand: FromAny(m[key])})
	}
	return Predicate{Checks: checks}, nil
}

func normalizeChangeExpectation(raw any) (ChangeExpectation, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		p, err := normalizePredicate(raw)
		if err != nil {
			return ChangeExpectation{}, err
		}
		return ChangeExpectation{To: &p}, nil
	}

	_, hasFrom := m["from"]
	_, hasTo := m["to"]
	if hasFrom || hasTo {
		for k := range m {
			if k != "from" && k != "to" {
				return ChangeExpectation{}, fmt.Errorf("unknown key %q (expected from/to)", k)
			}
		}
		ce := ChangeExpectation{}
		if fromRaw, ok := m["from"]; ok {
			p, err := normalizePredicate(fromRaw)
			if err != nil {
				return ChangeExpectation{}, fmt.Errorf("from: %w", err)
			}
			ce.From = &p
		}
		if toRaw, ok := m["to"]; ok {
			p, err := normalizePredicate(toRaw)
			if err != nil {
				return ChangeExpectation{}, fmt.Errorf("to: %w", err)
			}
			ce.To = &p
		}
		return ce, nil
	}

	// A predicate-object shorthand directly under the field (e.g.
	// {contains: "x"}) with no from/to wrapper is treated as the `to`
	// predicate, matching the bare-scalar shorthand's intent.
	p, err := normalizePredicate(raw)
	if err != nil {
		return ChangeExpectation{}, err
	}
	return ChangeExpectation{To: &p}, nil
}

func normalizeCount(raw any) (*Count, error) {
	switch v := raw.(type) {
	case float64:
		n := int(v)
		return &Count{Exact: &n}, nil
	case map[string]any:
		c := &Count{}
		for k, val := range v {
			n, ok := toInt(val)
			if !ok {
				return nil, fmt.Errorf("%s must be an integer", k)
			}
			switch k {
			case "min":
				c.Min = &n
			case "max":
				c.Max = &n
			default:
				return nil, fmt.Errorf("unknown key %q (expected min/max)", k)
			}
		}
		if c.Min == nil && c.Max == nil {
			return nil, fmt.Errorf("expected_count object must set min and/or max")
		}
		return c, nil
	default:
		return nil, fmt.Errorf("expected_count must be an integer or {min,max}")
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	default:
		return 0, false
	}
}
