package player

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// RollResult is the outcome of evaluating a dice expression.
type RollResult struct {
	Expression string
	Rolls      []int
	Total      int
}

// RollDice evaluates an "NdM ± NdM ± K" expression, e.g. "2d6+3" or
// "1d20 - 1d4 + 2". It is not wired into chat dispatch (see
// SPEC_FULL.md §4.6) — reserved for a future /roll command.
func RollDice(expr string) (RollResult, error) {
	terms, err := tokenizeSigned(expr)
	if err != nil {
		return RollResult{}, err
	}
	if len(terms) == 0 {
		return RollResult{}, fmt.Errorf("dice: empty expression")
	}

	result := RollResult{Expression: expr}
	for _, term := range terms {
		if strings.Contains(term.text, "d") || strings.Contains(term.text, "D") {
			n, m, err := parseDieTerm(term.text)
			if err != nil {
				return RollResult{}, err
			}
			for i := 0; i < n; i++ {
				roll := rand.Intn(m) + 1
				if term.negative {
					roll = -roll
				}
				result.Rolls = append(result.Rolls, roll)
				result.Total += roll
			}
		} else {
			k, err := strconv.Atoi(term.text)
			if err != nil {
				return RollResult{}, fmt.Errorf("dice: invalid constant %q", term.text)
			}
			if term.negative {
				k = -k
			}
			result.Total += k
		}
	}
	return result, nil
}

type signedTerm struct {
	text     string
	negative bool
}

func tokenizeSigned(expr string) ([]signedTerm, error) {
	expr = strings.ReplaceAll(expr, " ", "")
	if expr == "" {
		return nil, fmt.Errorf("dice: empty expression")
	}

	var terms []signedTerm
	negative := false
	start := 0
	if expr[0] == '+' || expr[0] == '-' {
		negative = expr[0] == '-'
		start = 1
	}
	cur := strings.Builder{}
	flush := func() error {
		if cur.Len() == 0 {
			return fmt.Errorf("dice: empty term in %q", expr)
		}
		terms = append(terms, signedTerm{text: cur.String(), negative: negative})
		cur.Reset()
		return nil
	}
	for i := start; i < len(expr); i++ {
		c := expr[i]
		if c == '+' || c == '-' {
			if err := flush(); err != nil {
				return nil, err
			}
			negative = c == '-'
			continue
		}
		cur.WriteByte(c)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return terms, nil
}

func parseDieTerm(text string) (count, sides int, err error) {
	lower := strings.ToLower(text)
	parts := strings.SplitN(lower, "d", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("dice: invalid die term %q", text)
	}
	count, err = strconv.Atoi(parts[0])
	if err != nil || count < 1 {
		return 0, 0, fmt.Errorf("dice: invalid die count in %q", text)
	}
	sides, err = strconv.Atoi(parts[1])
	if err != nil || sides < 1 {
		return 0, 0, fmt.Errorf("dice: invalid die sides in %q", text)
	}
	return count, sides, nil
}
