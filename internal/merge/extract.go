package merge

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Extractor derives a natural key from an array item. Fn returns "" when the
// item carries no usable value.
type Extractor struct {
	Name string
	Fn   func(item map[string]any) string
}

func fieldExtractor(name string, fields []string, clean func(string) string) Extractor {
	return Extractor{Name: name, Fn: func(item map[string]any) string {
		for _, f := range fields {
			s, ok := asString(item[f])
			if !ok {
				continue
			}
			if s = clean(s); s != "" {
				return s
			}
		}
		return ""
	}}
}

// Built-in extractors.
var (
	ByID     = fieldExtractor("id", []string{"id", "uuid"}, strings.TrimSpace)
	ByCode   = fieldExtractor("code", []string{"codigo", "code", "cod", "sku"}, strings.TrimSpace)
	BySaleID = fieldExtractor("sale", []string{"saleId"}, strings.TrimSpace)
	ByDoc    = fieldExtractor("doc", []string{"doc", "cpf", "cnpj", "documento"}, digitsOnly)
	ByPhone  = PhoneExtractor(DefaultPhoneRegion)
	ByEmail  = fieldExtractor("email", []string{"email"}, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
	ByName = fieldExtractor("name", []string{"nome", "name"}, foldName)
)

// DefaultPhoneRegion is the country assumed for phone numbers written
// without an international prefix.
const DefaultPhoneRegion = "BR"

var phoneFields = []string{"telefone", "phone", "celular", "whatsapp"}

// PhoneExtractor keys items by phone number in E.164 form, parsing local
// numbers as belonging to region. Numbers that do not parse are keyed by
// their digits.
func PhoneExtractor(region string) Extractor {
	return fieldExtractor("phone", phoneFields, func(s string) string {
		return phoneKey(s, region)
	})
}

func phoneKey(s, region string) string {
	if p, err := libphonenumber.Parse(s, region); err == nil && libphonenumber.IsPossibleNumber(p) {
		return libphonenumber.Format(p, libphonenumber.E164)
	}
	return digitsOnly(s)
}

// DefaultExtractors apply to arrays with no entry in Collections.
var DefaultExtractors = []Extractor{ByID, ByCode, ByDoc, ByPhone, ByEmail, ByName}

// Collections lists the extractors of each top-level array. estoque is
// keyed by cod through its own path and is not listed.
var Collections = map[string][]Extractor{
	"vendas":         {ByID},
	"cashSessions":   {ByID},
	"stockMovements": {ByID},
	"saleVoids":      {BySaleID, ByID},
	"auditLog":       {ByID},
	"fiscalQueue":    {ByID},
	"devedores":      {ByID, ByDoc, ByPhone, ByEmail, ByName},
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// foldName lowercases, strips accents and collapses whitespace, so that
// "José  Silva" and "jose silva" correlate.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func asString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return string(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	}
	return "", false
}
