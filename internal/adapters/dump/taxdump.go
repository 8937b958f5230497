package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/klauspost/compress/zip"
)

const (
	nodesFile      = "nodes.dmp"
	namesFile      = "names.dmp"
	fieldSeparator = "\t|\t"
	scientificName = "scientific name"
	maxLineBytes   = 1 << 20
)

var ErrMissingDumpFile = errors.New("taxonomy dump file missing")

type nodeInfo struct {
	parent int
	rank   string
}

// ReadTaxdump streams the taxa of an NCBI taxdump, given either as the
// downloaded zip archive or as an extracted directory. Each node carries its
// scientific name first, followed by its other names.
func ReadTaxdump(path string) iter.Seq2[domain.TaxonNode, error] {
	return func(yield func(domain.TaxonNode, error) bool) {
		source, err := openTaxdump(path)
		if err != nil {
			yield(domain.TaxonNode{}, err)
			return
		}
		defer func() { _ = source.Close() }()

		nodesReader, err := source.open(nodesFile)
		if err != nil {
			yield(domain.TaxonNode{}, err)
			return
		}
		nodes, err := readNodes(nodesReader)
		_ = nodesReader.Close()
		if err != nil {
			yield(domain.TaxonNode{}, err)
			return
		}

		namesReader, err := source.open(namesFile)
		if err != nil {
			yield(domain.TaxonNode{}, err)
			return
		}
		defer func() { _ = namesReader.Close() }()

		for node, err := range joinNames(namesReader, nodes) {
			if !yield(node, err) || err != nil {
				return
			}
		}
	}
}

func readNodes(r io.Reader) (map[int]nodeInfo, error) {
	nodes := make(map[int]nodeInfo, 1<<16)
	err := scanFields(r, nodesFile, func(line int, fields []string) error {
		if len(fields) < 3 {
			return fmt.Errorf("%s line %d: expected at least 3 fields, got %d", nodesFile, line, len(fields))
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("%s line %d: parse taxon id: %w", nodesFile, line, err)
		}
		parent := 0
		if fields[1] != "" {
			if parent, err = strconv.Atoi(fields[1]); err != nil {
				return fmt.Errorf("%s line %d: parse parent id: %w", nodesFile, line, err)
			}
		}
		nodes[id] = nodeInfo{parent: parent, rank: fields[2]}
		return nil
	})
	return nodes, err
}

// joinNames relies on names.dmp listing every name of a taxon on
// consecutive lines. Nodes without any name are emitted last, by id.
func joinNames(r io.Reader, nodes map[int]nodeInfo) iter.Seq2[domain.TaxonNode, error] {
	return func(yield func(domain.TaxonNode, error) bool) {
		var current *domain.TaxonNode
		emit := func() bool {
			if current == nil {
				return true
			}
			node := *current
			current = nil
			delete(nodes, node.ID)
			return yield(node, nil)
		}

		stopped := false
		err := scanFields(r, namesFile, func(line int, fields []string) error {
			if len(fields) < 4 {
				return fmt.Errorf("%s line %d: expected at least 4 fields, got %d", namesFile, line, len(fields))
			}
			id, err := strconv.Atoi(fields[0])
			if err != nil {
				return fmt.Errorf("%s line %d: parse taxon id: %w", namesFile, line, err)
			}

			if current == nil || current.ID != id {
				if !emit() {
					stopped = true
					return errStopScan
				}
				info, ok := nodes[id]
				if !ok {
					return fmt.Errorf("%s line %d: taxon %d has no node", namesFile, line, id)
				}
				current = &domain.TaxonNode{ID: id, ParentID: info.parent, Rank: info.rank}
			}

			if fields[3] == scientificName {
				current.Names = slices.Insert(current.Names, 0, fields[1])
			} else {
				current.Names = append(current.Names, fields[1])
			}
			return nil
		})
		if stopped {
			return
		}
		if err != nil {
			yield(domain.TaxonNode{}, err)
			return
		}
		if !emit() {
			return
		}

		ids := make([]int, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			info := nodes[id]
			if !yield(domain.TaxonNode{ID: id, ParentID: info.parent, Rank: info.rank}, nil) {
				return
			}
		}
	}
}

var errStopScan = errors.New("stop scan")

func scanFields(r io.Reader, name string, handle func(line int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSuffix(strings.TrimRight(scanner.Text(), "\r"), "\t|")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, fieldSeparator)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if err := handle(line, fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

type taxdumpSource struct {
	dir     string
	archive *zip.ReadCloser
}

func openTaxdump(path string) (*taxdumpSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy dump: %w", err)
	}
	if info.IsDir() {
		return &taxdumpSource{dir: path}, nil
	}

	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy archive: %w", err)
	}
	return &taxdumpSource{archive: archive}, nil
}

func (s *taxdumpSource) open(name string) (io.ReadCloser, error) {
	if s.archive == nil {
		file, err := os.Open(filepath.Join(s.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingDumpFile, name)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		return file, nil
	}

	for _, file := range s.archive.File {
		if filepath.Base(file.Name) != name {
			continue
		}
		reader, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in archive: %w", name, err)
		}
		return reader, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingDumpFile, name)
}

func (s *taxdumpSource) Close() error {
	if s.archive == nil {
		return nil
	}
	return s.archive.Close()
}
