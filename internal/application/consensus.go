package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

type ConsensusEngine struct {
	taxa          ports.TaxonStore
	distrustAbove int
	log           logrus.FieldLogger
}

func NewConsensusEngine(taxa ports.TaxonStore, log logrus.FieldLogger) *ConsensusEngine {
	if log == nil {
		log = discardLogger()
	}
	return &ConsensusEngine{
		taxa:          taxa,
		distrustAbove: domain.DefaultDistrustAbove,
		log:           log,
	}
}

func (e *ConsensusEngine) WithDistrustAbove(n int) *ConsensusEngine {
	clone := *e
	clone.distrustAbove = n
	return &clone
}

// Resolve returns the consensus taxon for taxon ids weighted by how many hits
// cite them. The boolean is false when the hits do not agree enough.
func (e *ConsensusEngine) Resolve(ctx context.Context, weights map[int]int) (int, bool, error) {
	ids := make([]int, 0, len(weights))
	for id, weight := range weights {
		if weight > 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	switch len(ids) {
	case 0:
		return 0, false, nil
	case 1:
		return ids[0], true, nil
	}

	lineages, err := e.taxa.Ancestries(ctx, ids)
	if err != nil {
		return 0, false, fmt.Errorf("load taxon ancestries: %w", err)
	}

	chains := make(map[int]domain.AncestryChain, len(lineages))
	for id, nodes := range lineages {
		chains[id] = domain.ChainFromNodes(nodes)
	}
	if missing := len(ids) - len(chains); missing > 0 {
		e.log.WithField("taxa", missing).Debug("taxa without ancestry ignored for consensus")
	}

	taxon, ok := domain.FirstCommonAncestor(domain.ExpandChains(weights, chains), e.distrustAbove)
	return taxon, ok, nil
}
