// Package players normalizes and matches player names across data sources.
// Score feeds, market titles, and stats providers rarely agree on spelling:
// "Alcaraz Garfia, Carlos", "C. Alcaraz" and "Carlos Alcaraz" must all land
// on the same player.
package players

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NFD only strips combining marks; stroked and crossed letters common in
// player names survive it and need explicit folds.
var strokeFold = strings.NewReplacer(
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"ø", "o", "Ø", "O",
	"æ", "ae", "Æ", "AE",
	"ß", "ss",
)

// Normalize canonicalizes a player name: accents stripped, lowercased,
// punctuation dropped, whitespace collapsed, "Last, First" flipped.
func Normalize(name string) string {
	if i := strings.Index(name, ","); i >= 0 {
		name = name[i+1:] + " " + name[:i]
	}

	out, _, err := transform.String(deaccent, name)
	if err != nil {
		out = name
	}
	out = strokeFold.Replace(out)
	out = strings.ToLower(out)

	var b strings.Builder
	b.Grow(len(out))
	for _, r := range out {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '\'' || r == '.':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Surname returns the normalized last token of a name, the part market
// titles most reliably carry.
func Surname(name string) string {
	fields := strings.Fields(Normalize(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Match reports whether two names plausibly refer to the same player.
// Exact normalized equality, or equal surnames with compatible leading
// initials, both count.
func Match(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	fa, fb := strings.Fields(na), strings.Fields(nb)
	if fa[len(fa)-1] != fb[len(fb)-1] {
		return false
	}
	// "c alcaraz" vs "carlos alcaraz": the shorter first token must prefix
	// the longer.
	if len(fa) == 1 || len(fb) == 1 {
		return true
	}
	return strings.HasPrefix(fa[0], fb[0]) || strings.HasPrefix(fb[0], fa[0])
}

// InTitle reports whether a market title plausibly names the player. Titles
// rarely carry full names ("Alcaraz vs. Sinner Winner?"), so a title token
// matching per Match counts, as does the full normalized name appearing as a
// phrase.
func InTitle(name, title string) bool {
	nn, nt := Normalize(name), Normalize(title)
	if nn == "" || nt == "" {
		return false
	}
	if strings.Contains(" "+nt+" ", " "+nn+" ") {
		return true
	}
	for _, tok := range strings.Fields(nt) {
		if Match(name, tok) {
			return true
		}
	}
	return false
}
