package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyrag/studyrag/internal/corpus"
	"github.com/studyrag/studyrag/internal/retrieval"
)

func captureCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func sampleResult() *retrieval.Result {
	return &retrieval.Result{
		OriginalQuery: "le tri ?",
		FinalQuery:    "tri fusion complexite",
		StepsApplied:  []string{"query_rewrite", "hybrid_search"},
		Documents: []corpus.Document{
			corpus.NewDocument("Le tri fusion divise la liste en deux.",
				corpus.NewMetadata(
					corpus.MetaFilename, "tri.md",
					corpus.MetaSubject, "Algorithmique",
				)),
		},
	}
}

func TestPrintText(t *testing.T) {
	cmd, buf := captureCmd()

	printText(cmd, sampleResult())

	out := buf.String()
	assert.Contains(t, out, "Query: le tri ?")
	assert.Contains(t, out, "Rewritten: tri fusion complexite")
	assert.Contains(t, out, "query_rewrite > hybrid_search")
	assert.Contains(t, out, "1. tri.md [Algorithmique]")
}

func TestPrintText_NoResults(t *testing.T) {
	cmd, buf := captureCmd()

	printText(cmd, &retrieval.Result{OriginalQuery: "tri", FinalQuery: "tri"})

	assert.Contains(t, buf.String(), "No results.")
}

func TestPrintJSON(t *testing.T) {
	cmd, buf := captureCmd()

	require.NoError(t, printJSON(cmd, sampleResult()))

	var payload jsonResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, "le tri ?", payload.OriginalQuery)
	assert.Equal(t, []string{"query_rewrite", "hybrid_search"}, payload.StepsApplied)
	require.Len(t, payload.Documents, 1)
	assert.Equal(t, "Algorithmique", payload.Documents[0].Metadata["matiere"])
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "court", snippet("court", 10))
	long := strings.Repeat("é", 20)
	assert.Equal(t, strings.Repeat("é", 10)+"...", snippet(long, 10))
}

func TestSearchCmd_Flags(t *testing.T) {
	cmd := newSearchCmd()

	for _, name := range []string{"sources", "matiere", "format", "no-rewrite", "no-hybrid", "no-rerank", "no-llm"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
}
