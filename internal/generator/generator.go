// Package generator produces adversarial test cases from built-in payload
// banks. Output is plain testcase.TestCase values, so generated suites and
// hand-written files flow through the same loader and runner.
package generator

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/failproof/stressor/internal/testcase"
)

// Categories understood by Generate.
const (
	CategoryPromptInjection = "prompt_injection"
	CategoryAdversarial     = "adversarial"
	CategoryEdgeCase        = "edge_case"
)

// Generator builds suites. A seeded rng keeps suites reproducible.
type Generator struct {
	rng *rand.Rand
}

// New returns a generator seeded for reproducible suites.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Categories lists the supported category names.
func Categories() []string {
	return []string{CategoryPromptInjection, CategoryAdversarial, CategoryEdgeCase}
}

// Generate produces up to count cases for the category, cycling through the
// category's subcategory banks. count <= 0 yields one case per bank entry.
func (g *Generator) Generate(category string, count int) ([]testcase.TestCase, error) {
	var bank []template
	switch category {
	case CategoryPromptInjection:
		bank = injectionBank
	case CategoryAdversarial:
		bank = adversarialBank(g.rng)
	case CategoryEdgeCase:
		bank = edgeCaseBank(g.rng)
	default:
		return nil, fmt.Errorf("unknown category %q (have: %s)", category, strings.Join(Categories(), ", "))
	}

	if count <= 0 {
		count = len(bank)
	}
	cases := make([]testcase.TestCase, 0, count)
	for i := 0; i < count; i++ {
		tpl := bank[i%len(bank)]
		tc := testcase.TestCase{
			ID:               uuid.NewString(),
			Category:         category,
			Subcategory:      tpl.subcategory,
			Name:             fmt.Sprintf("%s/%s #%d", category, tpl.subcategory, i/len(bank)+1),
			Payload:          tpl.payload,
			ExpectedBehavior: tpl.expected,
			Metadata:         tpl.metadata,
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// GenerateAll produces count cases per category.
func (g *Generator) GenerateAll(count int) ([]testcase.TestCase, error) {
	var all []testcase.TestCase
	for _, cat := range Categories() {
		cases, err := g.Generate(cat, count)
		if err != nil {
			return nil, err
		}
		all = append(all, cases...)
	}
	return all, nil
}

type template struct {
	subcategory string
	payload     string
	expected    string
	metadata    map[string]string
}
