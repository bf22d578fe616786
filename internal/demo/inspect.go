package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/efebarandurmaz/chromademo/internal/vector"
	"github.com/efebarandurmaz/chromademo/internal/vectordb"
)

// ContentPreview is the number of characters shown for sample documents.
const ContentPreview = 100

// Truncate shortens s to n characters, appending "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// FormatMetadata renders metadata as JSON with sorted keys.
func FormatMetadata(md vector.Metadata) string {
	if len(md) == 0 {
		return "{}"
	}
	b, err := json.Marshal(map[string]any(md))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(md))
	}
	return string(b)
}

// PrintCollections lists collection names, numbered from 1.
func PrintCollections(w io.Writer, names []string) {
	if len(names) == 0 {
		fmt.Fprintln(w, "No collections found")
		return
	}
	fmt.Fprintf(w, "Found %d collections:\n", len(names))
	for i, name := range names {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}
}

// PickCollection returns want when present in names, otherwise the first name.
func PickCollection(names []string, want string) string {
	for _, n := range names {
		if n == want {
			return n
		}
	}
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// PrintCollectionInfo writes the count and sample documents of a collection.
func PrintCollectionInfo(w io.Writer, info vectordb.CollectionInfo) {
	fmt.Fprintf(w, "Collection: %s\n", info.Name)
	fmt.Fprintf(w, "Number of documents: %d\n", info.Count)
	if info.Count == 0 {
		return
	}
	fmt.Fprintln(w, "Sample documents:")
	for i, r := range info.Sample {
		fmt.Fprintf(w, "  %d. ID: %s\n", i+1, r.ID)
		fmt.Fprintf(w, "     Content: %s\n", Truncate(r.Text, ContentPreview))
		fmt.Fprintf(w, "     Metadata: %s\n", FormatMetadata(r.Metadata))
	}
}

// PrintMatches writes ranked matches with their similarity scores.
func PrintMatches(w io.Writer, matches []vector.Match) {
	for i, m := range matches {
		fmt.Fprintf(w, "\n%d. Document (similarity: %.4f):\n", i+1, m.Similarity())
		fmt.Fprintf(w, "   %s\n", m.Document)
		fmt.Fprintf(w, "   Metadata: %s\n", FormatMetadata(m.Metadata))
	}
}

// RunBasicQuery runs an unfiltered query and prints the first result group.
func RunBasicQuery(ctx context.Context, c *vectordb.Client, w io.Writer, collection, text string, n int) error {
	if n <= 0 {
		n = vectordb.DefaultNResults
	}
	res, err := c.Query(ctx, collection, vectordb.QueryRequest{Texts: vectordb.Text(text), NResults: n})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nQuery: '%s'\n", text)
	fmt.Fprintf(w, "Top %d results:\n", n)
	PrintMatches(w, res.Group(0))
	return nil
}

// RunFilteredQuery runs a query restricted to metadata key == value.
func RunFilteredQuery(ctx context.Context, c *vectordb.Client, w io.Writer, collection, text, key, value string, n int) error {
	if n <= 0 {
		n = vectordb.DefaultNResults
	}
	res, err := c.Query(ctx, collection, vectordb.QueryRequest{
		Texts:    vectordb.Text(text),
		NResults: n,
		Where:    vector.Where{key: value},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nFiltered Query: '%s' where %s='%s'\n", text, key, value)
	fmt.Fprintf(w, "Top %d results:\n", n)
	if res.Empty() {
		fmt.Fprintln(w, "No matching documents found")
		return nil
	}
	PrintMatches(w, res.Group(0))
	return nil
}

// RunContainsQuery runs a query restricted to documents containing substr.
func RunContainsQuery(ctx context.Context, c *vectordb.Client, w io.Writer, collection, text, substr string, n int) error {
	if n <= 0 {
		n = vectordb.DefaultNResults
	}
	res, err := c.Query(ctx, collection, vectordb.QueryRequest{
		Texts:         vectordb.Text(text),
		NResults:      n,
		WhereDocument: &vector.WhereDocument{Contains: substr},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nDocument Query: '%s' containing '%s'\n", text, substr)
	fmt.Fprintf(w, "Top %d results:\n", n)
	if res.Empty() {
		fmt.Fprintln(w, "No matching documents found")
		return nil
	}
	PrintMatches(w, res.Group(0))
	return nil
}
