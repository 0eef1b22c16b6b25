// Package corpus defines the document model shared by the lexical index,
// rank fusion, and the retrieval pipeline.
package corpus

// Well-known metadata keys used across the project.
const (
	// MetaFilename is the stable identity key used for fusion deduplication.
	MetaFilename = "filename"
	// MetaFilepath is the path of the source file relative to the notes root.
	MetaFilepath = "filepath"
	// MetaSubject tags a document with its course subject.
	MetaSubject = "matiere"
	// MetaCompressed marks a document whose content was rewritten by the
	// compression stage.
	MetaCompressed = "compressed"
)

// identityPrefixLen is the number of content bytes mixed into the identity
// key. Filenames alone are not unique across chunks of the same file, so a
// fixed-length content prefix disambiguates them. This is a deduplication
// heuristic, not a globally unique ID.
const identityPrefixLen = 100

// Document is an immutable unit of retrievable content. Documents are owned
// by the corpus at index-build time and never mutated; stages that transform
// content (e.g. compression) produce a new Document instead.
type Document struct {
	Content  string
	Metadata Metadata
}

// NewDocument creates a document with the given content and metadata pairs.
func NewDocument(content string, meta Metadata) Document {
	return Document{Content: content, Metadata: meta}
}

// IdentityKey returns the deduplication key for a document:
// the filename metadata entry joined with a fixed-length content prefix.
// Two retrieval sources returning the same file chunk produce the same key.
func (d Document) IdentityKey() string {
	prefix := d.Content
	if len(prefix) > identityPrefixLen {
		prefix = prefix[:identityPrefixLen]
	}
	return d.Metadata.Get(MetaFilename) + ":" + prefix
}

// ScoredDocument pairs a document with a retrieval score.
// Ordering is by score descending with ties broken by retrieval order.
type ScoredDocument struct {
	Doc   Document
	Score float64
}
