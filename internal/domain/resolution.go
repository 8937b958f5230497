package domain

import "fmt"

const UnidentifiedOrganismTaxID = 32644

type ResolutionState int

const (
	ResolutionPending ResolutionState = iota
	ResolutionResolved
	ResolutionUnidentified
)

func (s ResolutionState) String() string {
	switch s {
	case ResolutionResolved:
		return "resolved"
	case ResolutionUnidentified:
		return "unidentified"
	default:
		return "pending"
	}
}

// Resolution is the outcome of looking an accession up remotely. A pending
// resolution has no taxon and is picked up again by the retry pass.
type Resolution struct {
	state ResolutionState
	taxon int
}

func Resolved(taxonID int) Resolution {
	return ResolutionFromTaxon(taxonID)
}

func Unidentified() Resolution {
	return Resolution{state: ResolutionUnidentified}
}

func Pending() Resolution {
	return Resolution{state: ResolutionPending}
}

func ResolutionFromTaxon(taxonID int) Resolution {
	if taxonID <= 0 || taxonID == UnidentifiedOrganismTaxID {
		return Unidentified()
	}
	return Resolution{state: ResolutionResolved, taxon: taxonID}
}

// ResolutionFromStored maps a nullable stored taxon column back to a resolution.
func ResolutionFromStored(taxonID int, valid bool) Resolution {
	if !valid {
		return Pending()
	}
	return ResolutionFromTaxon(taxonID)
}

func (r Resolution) State() ResolutionState {
	return r.state
}

func (r Resolution) IsPending() bool {
	return r.state == ResolutionPending
}

// TaxonID returns the id to persist and to count in consensus. Unidentified
// accessions report the reserved unidentified organism id.
func (r Resolution) TaxonID() (int, bool) {
	switch r.state {
	case ResolutionResolved:
		return r.taxon, true
	case ResolutionUnidentified:
		return UnidentifiedOrganismTaxID, true
	default:
		return 0, false
	}
}

func (r Resolution) String() string {
	if r.state == ResolutionResolved {
		return fmt.Sprintf("resolved(%d)", r.taxon)
	}
	return r.state.String()
}
