package dvf

import "fmt"

// Paris, Lyon and Marseille are recorded in the dataset under their
// arrondissement codes, never under the city-wide code.
var arrondissements = map[string]struct {
	prefix string
	count  int
}{
	"75056": {prefix: "751", count: 20},
	"69123": {prefix: "6938", count: 9},
	"13055": {prefix: "132", count: 16},
}

// ExpandCode returns the codes under which transactions of a commune are
// recorded. Codes without arrondissements are returned as is.
func ExpandCode(code string) []string {
	if code == "" {
		return nil
	}

	a, ok := arrondissements[code]
	if !ok {
		return []string{code}
	}

	codes := make([]string, 0, a.count)
	for i := 1; i <= a.count; i++ {
		if a.count < 10 {
			codes = append(codes, fmt.Sprintf("%s%d", a.prefix, i))
		} else {
			codes = append(codes, fmt.Sprintf("%s%02d", a.prefix, i))
		}
	}
	return codes
}
