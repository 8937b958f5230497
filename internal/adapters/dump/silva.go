package dump

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/klauspost/compress/gzip"
)

const (
	silvaAccessionColumn = 0
	silvaTaxonColumn     = 5
)

// OpenSilvaTaxmap streams a SILVA taxmap export, gunzipping it when the file
// name ends in .gz.
func OpenSilvaTaxmap(path string) iter.Seq2[domain.AccessionRecord, error] {
	return func(yield func(domain.AccessionRecord, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			yield(domain.AccessionRecord{}, fmt.Errorf("open taxmap: %w", err))
			return
		}
		defer func() { _ = file.Close() }()

		var r io.Reader = file
		if strings.HasSuffix(strings.ToLower(path), ".gz") {
			gz, err := gzip.NewReader(file)
			if err != nil {
				yield(domain.AccessionRecord{}, fmt.Errorf("open taxmap: %w", err))
				return
			}
			defer func() { _ = gz.Close() }()
			r = gz
		}

		for record, err := range ReadSilvaTaxmap(r) {
			if !yield(record, err) || err != nil {
				return
			}
		}
	}
}

// ReadSilvaTaxmap reads tab separated taxmap rows as nucleotide accessions.
// A leading header row is skipped and repeated accessions keep their first
// taxon.
func ReadSilvaTaxmap(r io.Reader) iter.Seq2[domain.AccessionRecord, error] {
	return func(yield func(domain.AccessionRecord, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

		seen := map[string]struct{}{}
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimRight(scanner.Text(), "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}

			columns := strings.Split(text, "\t")
			if len(columns) <= silvaTaxonColumn {
				yield(domain.AccessionRecord{}, fmt.Errorf("taxmap line %d: expected %d columns, got %d", line, silvaTaxonColumn+1, len(columns)))
				return
			}
			taxon, err := strconv.Atoi(strings.TrimSpace(columns[silvaTaxonColumn]))
			if err != nil {
				if line == 1 {
					continue
				}
				yield(domain.AccessionRecord{}, fmt.Errorf("taxmap line %d: parse taxid: %w", line, err))
				return
			}

			token := domain.StripVersion(strings.TrimSpace(columns[silvaAccessionColumn]))
			if token == "" {
				continue
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}

			record := domain.AccessionRecord{
				ID:         domain.NewAccessionID(domain.KindNucleotide, token),
				Resolution: domain.ResolutionFromTaxon(taxon),
			}
			if !yield(record, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(domain.AccessionRecord{}, fmt.Errorf("read taxmap: %w", err))
		}
	}
}
