package builtin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numberedDistrictPattern = regexp.MustCompile(`^(\p{Han}+?[縣市])第([0-9一二三四五六七八九十]+)選(?:舉)?區$`)

// Colloquial district names keyed by their cleaned form.
var constituencyAliases = map[string]string{
	"臺北市北松山‧信義": "臺北市第7選舉區",
	"臺北市北松山信義":  "臺北市第7選舉區",
}

var constituencyCleaner = strings.NewReplacer(
	" ", "",
	"　", "",
	"，", "",
	"台", "臺",
	"、", "‧",
	"・", "‧",
	"·", "‧",
	"•", "‧",
)

// NormalizeConstituency rewrites a user-supplied district name into the form
// the API indexes, e.g. "台北市第七選區" becomes "臺北市第7選舉區". Names it
// cannot interpret are returned cleaned but otherwise untouched.
func NormalizeConstituency(input string) string {
	cleaned := constituencyCleaner.Replace(strings.TrimSpace(input))
	if cleaned == "" {
		return ""
	}

	if alias, ok := constituencyAliases[cleaned]; ok {
		return alias
	}

	match := numberedDistrictPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return cleaned
	}
	number, ok := parseDistrictNumber(match[2])
	if !ok {
		return cleaned
	}
	return fmt.Sprintf("%s第%d選舉區", match[1], number)
}

var chineseDigits = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// parseDistrictNumber accepts Arabic numerals and Chinese numerals up to 99.
func parseDistrictNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}

	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10, true
		}
		d, ok := chineseDigits[runes[0]]
		return d, ok
	case 2:
		if runes[0] == '十' {
			d, ok := chineseDigits[runes[1]]
			return 10 + d, ok
		}
		if runes[1] == '十' {
			d, ok := chineseDigits[runes[0]]
			return d * 10, ok
		}
	case 3:
		if runes[1] != '十' {
			return 0, false
		}
		tens, ok := chineseDigits[runes[0]]
		if !ok {
			return 0, false
		}
		ones, ok := chineseDigits[runes[2]]
		return tens*10 + ones, ok
	}
	return 0, false
}
