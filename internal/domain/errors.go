package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccessionNotFound  = errors.New("accession not found")
	ErrTaxonNotFound      = errors.New("taxon not found")
	ErrDuplicateAccession = errors.New("duplicate accession")
	ErrEmptyTokenSet      = errors.New("empty accession token set")
	ErrInvalidAccession   = errors.New("invalid accession token")
	ErrCredentialNotFound = errors.New("credential not found")
)

// DuplicateAccessionError lists ids an insert found already present.
type DuplicateAccessionError struct {
	IDs []AccessionID
}

func (e *DuplicateAccessionError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("duplicate accession %s", e.IDs[0])
	}

	ids := make([]string, 0, min(len(e.IDs), 3))
	for _, id := range e.IDs[:min(len(e.IDs), 3)] {
		ids = append(ids, id.String())
	}
	suffix := ""
	if len(e.IDs) > 3 {
		suffix = ", ..."
	}
	return fmt.Sprintf("%d duplicate accessions (%s%s)", len(e.IDs), strings.Join(ids, ", "), suffix)
}

func (e *DuplicateAccessionError) Is(target error) bool {
	return target == ErrDuplicateAccession
}
