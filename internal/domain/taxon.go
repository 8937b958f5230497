package domain

// RootTaxonID is the sentinel top of the NCBI tree. It never appears in an
// ancestry chain.
const RootTaxonID = 1

type TaxonNode struct {
	ID       int
	ParentID int
	Rank     string
	Names    []string
}

func (n TaxonNode) ScientificName() string {
	if len(n.Names) == 0 {
		return ""
	}
	return n.Names[0]
}

func (n TaxonNode) HasParent() bool {
	return n.ParentID > 0 && n.ParentID != n.ID
}

// AncestryChain lists taxon ids from the root-most ancestor down to the leaf.
type AncestryChain []int

func ChainFromNodes(nodes []TaxonNode) AncestryChain {
	chain := make(AncestryChain, 0, len(nodes))
	for _, node := range nodes {
		if node.ID == RootTaxonID {
			continue
		}
		chain = append(chain, node.ID)
	}
	return chain
}

func (c AncestryChain) Leaf() (int, bool) {
	if len(c) == 0 {
		return 0, false
	}
	return c[len(c)-1], true
}
