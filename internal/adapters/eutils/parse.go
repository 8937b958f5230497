package eutils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

var errNoResult = errors.New("summary response has no result")

type summaryEntry struct {
	UID       string
	Accession string
	TaxonID   int
	HasTaxon  bool
	Title     string
	Comment   string
}

// parseSummaries reads an esummary document. Entries that cannot be read are
// returned in skipped rather than failing the whole document.
func parseSummaries(body []byte) ([]summaryEntry, []string, error) {
	result, err := resultObject(body)
	if err != nil {
		return nil, nil, err
	}

	uids, err := resultUIDs(result)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]summaryEntry, 0, len(uids))
	var skipped []string
	for _, uid := range uids {
		raw, dataType, _, err := jsonparser.Get(result, uid)
		if err != nil || dataType != jsonparser.Object {
			skipped = append(skipped, uid)
			continue
		}

		entry := summaryEntry{UID: uid}
		entry.Accession = firstString(raw, "caption", "accessionversion")
		if entry.Accession == "" {
			entry.Accession = uid
		}
		entry.Title, _ = jsonparser.GetString(raw, "title")
		entry.Comment, _ = jsonparser.GetString(raw, "comment")

		taxid, taxidType, _, err := jsonparser.Get(raw, "taxid")
		if err != nil || taxidType == jsonparser.NotExist {
			entries = append(entries, entry)
			continue
		}
		entry.HasTaxon = true
		entry.TaxonID, err = parseTaxonID(taxid, taxidType)
		if err != nil {
			skipped = append(skipped, uid)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, skipped, nil
}

// parseMerges reads the akataxid of each requested taxon from a taxonomy
// esummary document.
func parseMerges(body []byte, taxa []int) (map[int]int, error) {
	result, err := resultObject(body)
	if err != nil {
		return nil, err
	}

	merged := make(map[int]int, len(taxa))
	for _, taxon := range taxa {
		raw, dataType, _, err := jsonparser.Get(result, strconv.Itoa(taxon), "akataxid")
		if err != nil {
			continue
		}
		target, err := parseTaxonID(raw, dataType)
		if err != nil || target <= 0 {
			continue
		}
		merged[taxon] = target
	}
	return merged, nil
}

func resultObject(body []byte) ([]byte, error) {
	result, dataType, _, err := jsonparser.Get(body, "result")
	if err == nil && dataType == jsonparser.Object {
		return result, nil
	}

	if message, msgErr := jsonparser.GetString(body, "error"); msgErr == nil && message != "" {
		return nil, fmt.Errorf("%w: %s", errNoResult, message)
	}
	return nil, errNoResult
}

func resultUIDs(result []byte) ([]string, error) {
	var uids []string
	_, err := jsonparser.ArrayEach(result, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		switch dataType {
		case jsonparser.String, jsonparser.Number:
			uids = append(uids, string(value))
		}
	}, "uids")
	if err != nil {
		return nil, fmt.Errorf("read result uids: %w", err)
	}
	return uids, nil
}

// parseTaxonID returns -1 for the empty string the service uses for
// unclassified entries.
func parseTaxonID(raw []byte, dataType jsonparser.ValueType) (int, error) {
	value := strings.TrimSpace(string(raw))
	if dataType == jsonparser.String {
		parsed, err := jsonparser.ParseString(raw)
		if err != nil {
			return 0, err
		}
		value = strings.TrimSpace(parsed)
		if value == "" {
			return -1, nil
		}
	}

	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse taxid %q: %w", value, err)
	}
	return id, nil
}

func firstString(raw []byte, keys ...string) string {
	for _, key := range keys {
		if value, err := jsonparser.GetString(raw, key); err == nil && value != "" {
			return value
		}
	}
	return ""
}
