package match

import (
	"regexp"
	"strings"

	"oxidize/internal/piece"
)

var reCamelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
var reNameSep = regexp.MustCompile(`[_\s]+`)

// Tokenize splits an identifier into lower-case words, breaking both
// camelCase and snake_case, so FooBar and foo_bar compare equal.
func Tokenize(name string) []string {
	name = reCamelBoundary.ReplaceAllString(name, "$1 $2")
	return reNameSep.Split(strings.ToLower(name), -1)
}

func tokensEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Join(Tokenize(a), "") == strings.Join(Tokenize(b), "")
}

func kindIn(k piece.Kind, kinds []piece.Kind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func matchBy(name string, items []*piece.Piece, kinds []piece.Kind, same func(a, b string) bool) []*piece.Piece {
	if name == "" {
		return nil
	}
	for _, p := range items {
		if !kindIn(p.Kind, kinds) || p.Name() == "" {
			continue
		}
		if same(name, p.Name()) {
			return []*piece.Piece{p}
		}
	}
	return nil
}

func matchExact(name string, items []*piece.Piece, kinds []piece.Kind) []*piece.Piece {
	return matchBy(name, items, kinds, func(a, b string) bool { return a == b })
}

func matchExactLower(name string, items []*piece.Piece, kinds []piece.Kind) []*piece.Piece {
	return matchBy(name, items, kinds, strings.EqualFold)
}

func matchByTokens(name string, items []*piece.Piece, kinds []piece.Kind) []*piece.Piece {
	return matchBy(name, items, kinds, tokensEqual)
}

func matchExactOrTokens(name string, items []*piece.Piece, kinds []piece.Kind) []*piece.Piece {
	if found := matchExact(name, items, kinds); len(found) > 0 {
		return found
	}
	return matchByTokens(name, items, kinds)
}
