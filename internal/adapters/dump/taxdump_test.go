package dump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNodes = `1	|	1	|	no rank	|		|	8	|	0	|
2	|	131567	|	superkingdom	|		|	0	|	0	|
131567	|	1	|	no rank	|		|	8	|	1	|
561	|	2	|	genus	|		|	0	|	1	|
562	|	561	|	species	|	EC	|	0	|	1	|
`

const testNames = `1	|	all	|		|	synonym	|
1	|	root	|		|	scientific name	|
2	|	Bacteria	|	Bacteria <bacteria>	|	scientific name	|
2	|	eubacteria	|		|	genbank common name	|
131567	|	cellular organisms	|		|	scientific name	|
562	|	Bacillus coli	|		|	synonym	|
562	|	Escherichia coli	|		|	scientific name	|
`

func collectTaxa(t *testing.T, path string) ([]domain.TaxonNode, error) {
	t.Helper()

	var nodes []domain.TaxonNode
	for node, err := range ReadTaxdump(path) {
		if err != nil {
			return nodes, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func writeTaxdumpDir(t *testing.T, nodes, names string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, nodesFile), []byte(nodes), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, namesFile), []byte(names), 0o600))
	return dir
}

func writeTaxdumpZip(t *testing.T, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "taxdump.zip")
	file, err := os.Create(path)
	require.NoError(t, err)

	archive := zip.NewWriter(file)
	for name, content := range files {
		w, err := archive.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, archive.Close())
	require.NoError(t, file.Close())
	return path
}

func expectedTaxa() []domain.TaxonNode {
	return []domain.TaxonNode{
		{ID: 1, ParentID: 1, Rank: "no rank", Names: []string{"root", "all"}},
		{ID: 2, ParentID: 131567, Rank: "superkingdom", Names: []string{"Bacteria", "eubacteria"}},
		{ID: 131567, ParentID: 1, Rank: "no rank", Names: []string{"cellular organisms"}},
		{ID: 562, ParentID: 561, Rank: "species", Names: []string{"Escherichia coli", "Bacillus coli"}},
		{ID: 561, ParentID: 2, Rank: "genus"},
	}
}

func TestReadTaxdumpFromDirectory(t *testing.T) {
	t.Parallel()

	nodes, err := collectTaxa(t, writeTaxdumpDir(t, testNodes, testNames))
	require.NoError(t, err)
	assert.Equal(t, expectedTaxa(), nodes)
	assert.False(t, nodes[0].HasParent())
}

func TestReadTaxdumpFromZip(t *testing.T) {
	t.Parallel()

	path := writeTaxdumpZip(t, map[string]string{
		nodesFile:    testNodes,
		namesFile:    testNames,
		"readme.txt": "ignored",
	})

	nodes, err := collectTaxa(t, path)
	require.NoError(t, err)
	assert.Equal(t, expectedTaxa(), nodes)
}

func TestReadTaxdumpReportsMissingNames(t *testing.T) {
	t.Parallel()

	path := writeTaxdumpZip(t, map[string]string{nodesFile: testNodes})

	_, err := collectTaxa(t, path)
	require.ErrorIs(t, err, ErrMissingDumpFile)
	assert.Contains(t, err.Error(), namesFile)
}

func TestReadTaxdumpRejectsNameWithoutNode(t *testing.T) {
	t.Parallel()

	dir := writeTaxdumpDir(t, testNodes, testNames+"9606	|	Homo sapiens	|		|	scientific name	|\n")

	nodes, err := collectTaxa(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taxon 9606 has no node")
	assert.NotEmpty(t, nodes)
}

func TestReadTaxdumpStopsWhenConsumerStops(t *testing.T) {
	t.Parallel()

	dir := writeTaxdumpDir(t, testNodes, testNames)
	var seen []int
	for node, err := range ReadTaxdump(dir) {
		require.NoError(t, err)
		seen = append(seen, node.ID)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, seen)
}

func TestReadTaxdumpRejectsMalformedNodes(t *testing.T) {
	t.Parallel()

	dir := writeTaxdumpDir(t, strings.Replace(testNodes, "561	|	2", "x561	|	2", 1), testNames)

	_, err := collectTaxa(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nodes.dmp line 4")
}
