package domain

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindNucleotide Kind = "n"
	KindProtein    Kind = "p"
)

func (k Kind) Database() string {
	switch k {
	case KindProtein:
		return "protein"
	default:
		return "nucleotide"
	}
}

func (k Kind) Validate() error {
	switch k {
	case KindNucleotide, KindProtein:
		return nil
	default:
		return fmt.Errorf("unknown accession kind %q", string(k))
	}
}

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "n", "nucl", "nucleotide":
		return KindNucleotide, nil
	case "p", "prot", "protein":
		return KindProtein, nil
	default:
		return "", fmt.Errorf("unknown accession kind %q", raw)
	}
}

type AccessionID struct {
	Kind  Kind
	Token string
}

func NewAccessionID(kind Kind, token string) AccessionID {
	return AccessionID{Kind: kind, Token: token}
}

func (id AccessionID) String() string {
	return string(id.Kind) + ":" + id.Token
}

func (id AccessionID) Validate() error {
	if err := id.Kind.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(id.Token) == "" {
		return ErrInvalidAccession
	}
	return nil
}

// ParseAccessionToken accepts "p:TOKEN" for proteins and "n:TOKEN" or a bare
// token for nucleotides. The version suffix is dropped.
func ParseAccessionToken(raw string) (AccessionID, error) {
	trimmed := strings.TrimSpace(raw)
	kind := KindNucleotide
	switch {
	case strings.HasPrefix(trimmed, "p:"):
		kind = KindProtein
		trimmed = trimmed[2:]
	case strings.HasPrefix(trimmed, "n:"):
		trimmed = trimmed[2:]
	}

	token := StripVersion(strings.TrimSpace(trimmed))
	if token == "" {
		return AccessionID{}, fmt.Errorf("parse accession %q: %w", raw, ErrInvalidAccession)
	}

	return AccessionID{Kind: kind, Token: token}, nil
}

func StripVersion(token string) string {
	if i := strings.IndexByte(token, '.'); i >= 0 {
		return token[:i]
	}
	return token
}

// SplitTokenCell splits a comma separated list of accessions as found in a
// single assignment cell, dropping blanks.
func SplitTokenCell(cell string) []string {
	parts := strings.Split(cell, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	return tokens
}

type AccessionRecord struct {
	ID               AccessionID
	Resolution       Resolution
	HitDefinition    string
	HasHitDefinition bool
}

func NewPendingRecord(id AccessionID) AccessionRecord {
	return AccessionRecord{ID: id, Resolution: Pending()}
}

func NewUnidentifiedRecord(id AccessionID) AccessionRecord {
	return AccessionRecord{ID: id, Resolution: Unidentified()}
}

func (r AccessionRecord) WithHitDefinition(text string) AccessionRecord {
	r.HitDefinition = TruncateHitDefinition(text)
	r.HasHitDefinition = true
	return r
}

const (
	hitDefinitionLimit     = 1024
	hitDefinitionTruncated = 1000
	hitDefinitionEllipsis  = "..."
)

func TruncateHitDefinition(text string) string {
	if len(text) <= hitDefinitionLimit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= hitDefinitionLimit {
		return text
	}
	return string(runes[:hitDefinitionTruncated]) + hitDefinitionEllipsis
}

func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
