// Package demo loads the sample corpus and prints query scenarios.
package demo

import (
	"context"
	"fmt"
	"io"

	"github.com/efebarandurmaz/chromademo/internal/observability"
	"github.com/efebarandurmaz/chromademo/internal/sample"
	"github.com/efebarandurmaz/chromademo/internal/vector"
	"github.com/efebarandurmaz/chromademo/internal/vectordb"
)

// Scenario is one illustrative query printed by the demo.
type Scenario struct {
	Name     string
	Header   string
	Texts    vectordb.Texts
	NResults int
	Where    vector.Where
	// Labels title each result group when Texts holds more than one query.
	Labels []string
}

// Scenarios are run in order after the corpus is loaded.
var Scenarios = []Scenario{
	{
		Name:     "space_facts",
		Header:   "Space Facts Query Results",
		Texts:    vectordb.Text("Give me some facts about space"),
		NResults: 3,
	},
	{
		Name:     "superheroes",
		Header:   "Superhero Query Results",
		Texts:    vectordb.Text("Tell me about superheroes"),
		NResults: 3,
		Where:    vector.Where{sample.SourceKey: "Superheroes"},
	},
	{
		Name:     "multi_query",
		Header:   "Multi-Query Results",
		Texts:    vectordb.Texts{"Tell me about animals", "Tell me about movies"},
		NResults: 2,
		Labels:   []string{"Animals Query:", "Movies Query:"},
	},
}

// LoadSampleData writes the fixed corpus into collection.
func LoadSampleData(ctx context.Context, c *vectordb.Client, collection string) error {
	ids, docs, metadatas := sample.Batch()
	_, err := c.AddDocuments(ctx, collection, docs, metadatas, ids, nil)
	return err
}

// Run loads the corpus and prints every scenario to w. The first failure aborts.
func Run(ctx context.Context, c *vectordb.Client, w io.Writer, collection string) error {
	if err := LoadSampleData(ctx, c, collection); err != nil {
		return fmt.Errorf("load sample data: %w", err)
	}
	fmt.Fprintln(w, "\n--- Loaded the data sucessfully ---")

	for _, s := range Scenarios {
		if err := runScenario(ctx, c, w, collection, s); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

func runScenario(ctx context.Context, c *vectordb.Client, w io.Writer, collection string, s Scenario) error {
	ctx, span := observability.StartDemoSpan(ctx, s.Name)
	defer span.End()

	res, err := c.Query(ctx, collection, vectordb.QueryRequest{
		Texts:    s.Texts,
		NResults: s.NResults,
		Where:    s.Where,
	})
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	PrintScenario(w, s, res)
	return nil
}

// PrintScenario writes a header and one bullet per matched document.
func PrintScenario(w io.Writer, s Scenario, res vector.QueryResult) {
	fmt.Fprintf(w, "\n--- %s ---\n", s.Header)
	if len(s.Texts) < 2 {
		printBullets(w, res.Documents(0))
		return
	}
	for i := range s.Texts {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if i < len(s.Labels) {
			fmt.Fprintln(w, s.Labels[i])
		} else {
			fmt.Fprintf(w, "Query %q:\n", s.Texts[i])
		}
		printBullets(w, res.Documents(i))
	}
}

func printBullets(w io.Writer, docs []string) {
	for _, d := range docs {
		fmt.Fprintf(w, "• %s\n", d)
	}
}
