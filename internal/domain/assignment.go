package domain

// Assignment is the best-hit record of one sequence as far as taxonomy is
// concerned.
type Assignment struct {
	Accessions     []string
	HitDefinitions []*string
	TaxonID        *int
}

func (a *Assignment) SetTaxon(id int) {
	a.TaxonID = &id
}

func (a *Assignment) Taxon() (int, bool) {
	if a.TaxonID == nil {
		return 0, false
	}
	return *a.TaxonID, true
}

func (a *Assignment) HasHitDefinitions() bool {
	for _, def := range a.HitDefinitions {
		if def != nil {
			return true
		}
	}
	return false
}
