// Package sample holds the fixed demonstration corpus.
package sample

import (
	"fmt"

	"github.com/efebarandurmaz/chromademo/internal/vector"
)

const (
	// CollectionName is where the demo loads the corpus.
	CollectionName = "sample_collection"

	// AddedDate is stamped on every document's metadata.
	AddedDate = "2025-04-15"

	// SourceKey is the metadata key holding a document's category.
	SourceKey = "source"
)

// Categories in corpus order.
var Categories = []string{"Space", "History", "Animals", "Movies", "Superheroes"}

// Document is one corpus entry.
type Document struct {
	ID     string
	Text   string
	Source string
}

var texts = [...]string{
	"Mars, often called the 'Red Planet', has captured the imagination of scientists and space enthusiasts alike.",
	"The Hubble Space Telescope has provided us with breathtaking images of distant galaxies and nebulae.",
	"The concept of a black hole, where gravity is so strong that nothing can escape it, was first theorized by Albert Einstein's theory of general relativity.",
	"The Renaissance was a pivotal period in history that saw a flourishing of art, science, and culture in Europe.",
	"The Industrial Revolution marked a significant shift in human society, leading to urbanization and technological advancements.",
	"The ancient city of Rome was once the center of a powerful empire that spanned across three continents.",
	"Dolphins are known for their high intelligence and social behavior, often displaying playful interactions with humans.",
	"The chameleon is a remarkable creature that can change its skin color to blend into its surroundings or communicate with other chameleons.",
	"The migration of monarch butterflies spans thousands of miles and involves multiple generations to complete.",
	"Christopher Nolan's 'Inception' is a mind-bending movie that explores the boundaries of reality and dreams.",
	"The 'Lord of the Rings' trilogy, directed by Peter Jackson, brought J.R.R. Tolkien's epic fantasy world to life on the big screen.",
	"Pixar's 'Toy Story' was the first feature-length film entirely animated using computer-generated imagery (CGI).",
	"Superman, known for his incredible strength and ability to fly, is one of the most iconic superheroes in comic book history.",
	"Black Widow, portrayed by Scarlett Johansson, is a skilled spy and assassin in the Marvel Cinematic Universe.",
	"The character of Iron Man, played by Robert Downey Jr., kickstarted the immensely successful Marvel movie franchise in 2008.",
}

const perCategory = 3

// Documents returns the corpus: ids doc_1..doc_15, three per category.
func Documents() []Document {
	docs := make([]Document, len(texts))
	for i, text := range texts {
		docs[i] = Document{
			ID:     fmt.Sprintf("doc_%d", i+1),
			Text:   text,
			Source: Categories[i/perCategory],
		}
	}
	return docs
}

// Batch splits the corpus into the parallel slices AddDocuments takes.
func Batch() (ids, docs []string, metadatas []vector.Metadata) {
	for _, d := range Documents() {
		ids = append(ids, d.ID)
		docs = append(docs, d.Text)
		metadatas = append(metadatas, vector.Metadata{
			SourceKey:    d.Source,
			"added_date": AddedDate,
		})
	}
	return ids, docs, metadatas
}
