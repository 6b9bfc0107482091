package compare

import (
	"sort"
	"strings"
	"unicode"

	"github.com/siherrmann/resolver/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalized is a name prepared for comparison
type Normalized struct {
	Text   string
	Tokens []string
	// LegalForm is the canonical legal form stripped from a company name.
	LegalForm string
}

// Sorted returns the tokens sorted and joined, for order insensitive comparison
func (n Normalized) Sorted() string {
	tokens := append([]string(nil), n.Tokens...)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Letters without a decomposition that NFKD can strip.
var ligatures = strings.NewReplacer("ø", "o", "æ", "ae", "œ", "oe", "ß", "ss", "ð", "d", "þ", "th", "ł", "l")

// Fold removes diacritics and case ("Åsa Öberg" -> "asa oberg")
func Fold(text string) string {
	// A transform chain keeps state, so every call builds its own.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}
	return ligatures.Replace(folded)
}

// tokenize splits on everything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize folds a name and applies the rules of the entity type:
// legal forms are stripped from companies, nicknames mapped for persons
// and street abbreviations expanded for addresses.
func Normalize(text string, entityType model.EntityType) Normalized {
	folded := Fold(text)

	var n Normalized
	switch entityType {
	case model.EntityTypeCompany:
		n.Tokens, n.LegalForm = stripLegalForms(tokenize(folded))
	case model.EntityTypePerson:
		n.Tokens = mapNicknames(tokenize(folded))
	case model.EntityTypeAddress:
		n.Tokens = tokenize(expandStreets(folded))
	default:
		n.Tokens = tokenize(folded)
	}
	n.Text = strings.Join(n.Tokens, " ")
	return n
}

// legalForms maps folded legal form tokens to their canonical form
var legalForms = map[string]string{
	"ab":               "AB",
	"aktiebolag":       "AB",
	"aktiebolaget":     "AB",
	"publ":             "AB",
	"hb":               "HB",
	"handelsbolag":     "HB",
	"handelsbolaget":   "HB",
	"kb":               "KB",
	"kommanditbolag":   "KB",
	"kommanditbolaget": "KB",
	"inc":              "INC",
	"incorporated":     "INC",
	"corp":             "CORP",
	"corporation":      "CORP",
	"ltd":              "LTD",
	"limited":          "LTD",
	"llc":              "LLC",
	"plc":              "PLC",
	"gmbh":             "GMBH",
	"oy":               "OY",
	"oyj":              "OY",
	"asa":              "ASA",
	"aps":              "APS",
}

// legalFormPairs are legal forms spelled with two tokens
var legalFormPairs = map[[2]string]string{
	{"ek", "for"}:             "EK_FOR",
	{"ekonomisk", "forening"}: "EK_FOR",
	{"ideell", "forening"}:    "IDEELL_FOR",
	{"enskild", "firma"}:      "EF",
	{"co", "kg"}:              "KG",
}

// stripLegalForms removes legal form tokens anywhere in the name and returns
// the first one found. A name consisting only of a legal form is kept as is.
func stripLegalForms(tokens []string) ([]string, string) {
	var form string
	kept := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) {
			if f, ok := legalFormPairs[[2]string{tokens[i], tokens[i+1]}]; ok {
				if form == "" {
					form = f
				}
				i++
				continue
			}
		}
		if f, ok := legalForms[tokens[i]]; ok {
			if form == "" {
				form = f
			}
			continue
		}
		kept = append(kept, tokens[i])
	}
	if len(kept) == 0 {
		return tokens, ""
	}
	return kept, form
}

// nicknames maps folded Swedish and English short forms to the given name
var nicknames = map[string]string{
	"kalle":  "karl",
	"lasse":  "lars",
	"pelle":  "per",
	"bosse":  "bo",
	"nisse":  "nils",
	"janne":  "jan",
	"micke":  "mikael",
	"mikke":  "mikael",
	"olle":   "olof",
	"hasse":  "hans",
	"gurra":  "gustav",
	"kicki":  "kristina",
	"stina":  "kristina",
	"lotta":  "charlotte",
	"maja":   "maria",
	"sanna":  "susanne",
	"jocke":  "joakim",
	"steffe": "stefan",
	"tompa":  "tomas",
	"bill":   "william",
	"will":   "william",
	"bob":    "robert",
	"rob":    "robert",
	"jim":    "james",
	"mike":   "michael",
	"kate":   "katherine",
	"liz":    "elizabeth",
}

func mapNicknames(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if full, ok := nicknames[t]; ok {
			out[i] = full
		} else {
			out[i] = t
		}
	}
	return out
}

// expandStreets rewrites "storg." to "storgatan" and "kungsv." to "kungsvagen".
// A detached abbreviation ("drottning g.") is joined to the previous word.
func expandStreets(folded string) string {
	fields := strings.Fields(folded)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		var suffix string
		switch {
		case strings.HasSuffix(f, "g."):
			suffix = "gatan"
		case strings.HasSuffix(f, "v."):
			suffix = "vagen"
		default:
			out = append(out, f)
			continue
		}

		stem := strings.TrimSuffix(f, f[len(f)-2:])
		if stem == "" && len(out) > 0 {
			out[len(out)-1] += suffix
			continue
		}
		out = append(out, stem+suffix)
	}
	return strings.Join(out, " ")
}
