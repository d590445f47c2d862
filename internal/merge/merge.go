package merge

import (
	"fmt"
	"strings"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/normalize"
)

// Prefer selects the winning side of a conflict.
type Prefer string

const (
	PreferCurrent Prefer = "current"
	PreferImport  Prefer = "import"
)

// Conflict is a primitive that differed between the two sides. Current and
// Incoming hold both candidates; Kept names the side that won.
type Conflict struct {
	Path     string `json:"path"`
	Current  any    `json:"current"`
	Incoming any    `json:"incoming"`
	Kept     Prefer `json:"kept"`
}

// CollectionStats counts array items taken from the incoming side.
type CollectionStats struct {
	Added  int `json:"added"`
	Merged int `json:"merged"`
}

// Report describes what a merge did.
type Report struct {
	Added       []string                    `json:"added"`
	Updated     []string                    `json:"updated"`
	Conflicts   []Conflict                  `json:"conflicts"`
	Collections map[string]*CollectionStats `json:"collections"`
	Warnings    []string                    `json:"warnings"`
}

// Option configures Merge.
type Option func(*options)

type options struct {
	prefer      Prefer
	sumStockQty bool
	phoneRegion string
}

// WithPrefer sets the conflict winner. Default PreferCurrent.
func WithPrefer(p Prefer) Option {
	return func(o *options) {
		if p == PreferImport {
			o.prefer = PreferImport
		} else {
			o.prefer = PreferCurrent
		}
	}
}

// WithSumStockQty selects whether estoque quantities add up (default) or
// follow Prefer.
func WithSumStockQty(sum bool) Option {
	return func(o *options) { o.sumStockQty = sum }
}

// WithPhoneRegion sets the country used to read phone numbers without an
// international prefix. Default DefaultPhoneRegion.
func WithPhoneRegion(region string) Option {
	return func(o *options) {
		if region = strings.ToUpper(strings.TrimSpace(region)); region != "" {
			o.phoneRegion = region
		}
	}
}

// Merge reconciles incoming into current. Neither input is modified.
func Merge(current, incoming map[string]any, opts ...Option) (map[string]any, Report) {
	o := options{prefer: PreferCurrent, sumStockQty: true, phoneRegion: DefaultPhoneRegion}
	for _, opt := range opts {
		opt(&o)
	}
	m := &merger{
		opts:  o,
		phone: PhoneExtractor(o.phoneRegion),
		report: Report{
			Added:       []string{},
			Updated:     []string{},
			Conflicts:   []Conflict{},
			Collections: map[string]*CollectionStats{},
			Warnings:    []string{},
		},
	}

	if current == nil {
		current = map[string]any{}
	}
	if incoming == nil {
		incoming = map[string]any{}
	}
	out := canonical.Clone(current).(map[string]any)
	for _, key := range canonical.SortedKeys(incoming) {
		iv := incoming[key]
		cv, ok := current[key]
		if !ok {
			out[key] = canonical.Clone(iv)
			m.report.Added = append(m.report.Added, key)
			continue
		}
		switch key {
		case "estoque":
			out[key] = m.mergeStock(asArray(cv), asArray(iv))
		case "meta":
			out[key] = m.mergeMeta(cv, iv)
		default:
			out[key] = m.mergeValue(key, key, cv, iv)
		}
	}
	return out, m.report
}

type merger struct {
	opts   options
	phone  Extractor
	report Report
}

// extractors returns list with the phone extractor bound to the merge's
// region.
func (m *merger) extractors(list []Extractor) []Extractor {
	if m.opts.phoneRegion == DefaultPhoneRegion {
		return list
	}
	out := make([]Extractor, len(list))
	for i, ex := range list {
		if ex.Name == m.phone.Name {
			ex = m.phone
		}
		out[i] = ex
	}
	return out
}

func (m *merger) stats(collection string) *CollectionStats {
	s, ok := m.report.Collections[collection]
	if !ok {
		s = &CollectionStats{}
		m.report.Collections[collection] = s
	}
	return s
}

func (m *merger) warnf(format string, args ...any) {
	m.report.Warnings = append(m.report.Warnings, fmt.Sprintf(format, args...))
}

// mergeValue merges two values found at path. collection is the top-level
// key the path descends from.
func (m *merger) mergeValue(path, collection string, cv, iv any) any {
	if cObj, ok := cv.(map[string]any); ok {
		if iObj, ok := iv.(map[string]any); ok {
			return m.mergeObject(path, collection, cObj, iObj)
		}
	}
	if cArr, ok := cv.([]any); ok {
		if iArr, ok := iv.([]any); ok {
			extractors := DefaultExtractors
			if path == collection {
				if ex, ok := Collections[collection]; ok {
					extractors = ex
				}
			}
			return m.mergeArray(path, collection, cArr, iArr, m.extractors(extractors))
		}
	}
	return m.resolve(path, cv, iv)
}

// resolve picks between two leaves by Prefer and records a conflict when
// they differ.
func (m *merger) resolve(path string, cv, iv any) any {
	if canonical.Equal(cv, iv) {
		return cv
	}
	m.report.Conflicts = append(m.report.Conflicts, Conflict{
		Path:     path,
		Current:  canonical.Clone(cv),
		Incoming: canonical.Clone(iv),
		Kept:     m.opts.prefer,
	})
	if m.opts.prefer == PreferImport {
		m.report.Updated = append(m.report.Updated, path)
		return canonical.Clone(iv)
	}
	return cv
}

func (m *merger) mergeObject(path, collection string, cur, inc map[string]any) map[string]any {
	out := canonical.Clone(cur).(map[string]any)
	for _, key := range canonical.SortedKeys(inc) {
		p := path + "." + key
		cv, ok := cur[key]
		if !ok {
			out[key] = canonical.Clone(inc[key])
			m.report.Updated = append(m.report.Updated, p)
			continue
		}
		out[key] = m.mergeValue(p, collection, cv, inc[key])
	}
	return out
}

// mergeArray keeps every current item in order and folds incoming items
// into the one with the same fingerprint, appending the rest.
func (m *merger) mergeArray(path, collection string, cur, inc []any, extractors []Extractor) []any {
	out := make([]any, 0, len(cur)+len(inc))
	index := make(map[string]int, len(cur))
	for _, item := range cur {
		fp := fingerprint(item, extractors)
		if _, dup := index[fp]; !dup {
			index[fp] = len(out)
		}
		out = append(out, canonical.Clone(item))
	}

	topLevel := path == collection
	for _, item := range inc {
		fp := fingerprint(item, extractors)
		i, ok := index[fp]
		if !ok {
			index[fp] = len(out)
			out = append(out, canonical.Clone(item))
			if topLevel {
				m.stats(collection).Added++
			}
			continue
		}
		before := out[i]
		out[i] = m.mergeValue(fmt.Sprintf("%s[%s]", path, fp), collection, before, item)
		if topLevel && !canonical.Equal(before, out[i]) {
			m.stats(collection).Merged++
		}
	}
	return out
}

// fingerprint returns the natural key of item, or its canonical JSON.
func fingerprint(item any, extractors []Extractor) string {
	if obj, ok := item.(map[string]any); ok {
		for _, ex := range extractors {
			if key := ex.Fn(obj); key != "" {
				return ex.Name + ":" + key
			}
		}
	}
	data, err := canonical.Marshal(item)
	if err != nil {
		return fmt.Sprintf("content:%v", item)
	}
	return "content:" + string(data)
}

// mergeStock merges estoque by cod.
func (m *merger) mergeStock(cur, inc []any) []any {
	stats := m.stats("estoque")
	out := make([]any, 0, len(cur)+len(inc))
	index := make(map[string]int, len(cur))

	for i, item := range cur {
		obj, cod := stockItem(item)
		if cod == "" {
			m.warnf("current estoque[%d] has no code; dropped", i)
			continue
		}
		if _, dup := index[cod]; dup {
			m.warnf("current estoque has duplicate code %s; later entry dropped", cod)
			continue
		}
		index[cod] = len(out)
		out = append(out, canonical.Clone(obj))
	}

	for i, item := range inc {
		obj, cod := stockItem(item)
		if cod == "" {
			m.warnf("incoming estoque[%d] has no code; dropped", i)
			continue
		}
		j, ok := index[cod]
		if !ok {
			index[cod] = len(out)
			out = append(out, canonical.Clone(obj))
			stats.Added++
			continue
		}
		out[j] = m.mergeStockItem(cod, out[j].(map[string]any), obj)
		stats.Merged++
	}
	return out
}

func (m *merger) mergeStockItem(cod string, cur, inc map[string]any) map[string]any {
	path := fmt.Sprintf("estoque[%s]", cod)
	curRest := canonical.Clone(cur).(map[string]any)
	incRest := canonical.Clone(inc).(map[string]any)
	cq, cHas := curRest["qtd"]
	iq, iHas := incRest["qtd"]
	delete(curRest, "qtd")
	delete(incRest, "qtd")

	out := m.mergeObject(path, "estoque", curRest, incRest)
	switch {
	case cHas && iHas && m.opts.sumStockQty:
		a, _ := normalize.ToInt(cq)
		b, _ := normalize.ToInt(iq)
		out["qtd"] = a + b
		if b != 0 {
			m.report.Updated = append(m.report.Updated, path+".qtd")
		}
	case cHas && iHas:
		out["qtd"] = m.resolve(path+".qtd", cq, iq)
	case cHas:
		out["qtd"] = cq
	case iHas:
		out["qtd"] = canonical.Clone(iq)
	}
	return out
}

func stockItem(item any) (map[string]any, string) {
	obj, ok := item.(map[string]any)
	if !ok {
		return nil, ""
	}
	cod, _ := asString(obj["cod"])
	return obj, strings.TrimSpace(cod)
}

// mergeMeta keeps the earliest createdAt and the latest updatedAt; other
// fields follow Prefer silently.
func (m *merger) mergeMeta(cv, iv any) any {
	cur, ok1 := cv.(map[string]any)
	inc, ok2 := iv.(map[string]any)
	if !ok1 || !ok2 {
		return m.resolve("meta", cv, iv)
	}
	out := canonical.Clone(cur).(map[string]any)
	for _, key := range canonical.SortedKeys(inc) {
		iVal := inc[key]
		cVal, ok := cur[key]
		if !ok {
			out[key] = canonical.Clone(iVal)
			continue
		}
		cs, cIsStr := cVal.(string)
		is, iIsStr := iVal.(string)
		switch {
		case key == "createdAt" && cIsStr && iIsStr:
			out[key] = min(cs, is)
		case key == "updatedAt" && cIsStr && iIsStr:
			out[key] = max(cs, is)
		case m.opts.prefer == PreferImport:
			out[key] = canonical.Clone(iVal)
		}
	}
	return out
}

func asArray(v any) []any {
	arr, _ := v.([]any)
	return arr
}
