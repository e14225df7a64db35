// Package marker builds the positional marker set and per-content-set
// payloads from an approved assignment set, and owns the base-document
// serialization. Markers are opaque: the base encoding carries position
// and sequence only, never membership, length, or content.
package marker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
)

var (
	ErrNoAssignments     = errors.New("marker: assignment set is empty")
	ErrMismatchedOffsets = errors.New("marker: start and end offsets must both be set or both be absent")
)

// Assignment is one row of the approved assignment set supplied by the
// markup collaborator.
type Assignment struct {
	SetIdentifier string
	BlockID       string
	StartOffset   *int
	EndOffset     *int
	SelectedText  string
	PageNumber    int
}

// Marker is the opaque artifact placed in the base document. Membership
// and ContentHash are confidential metadata and never enter the base
// serialization.
type Marker struct {
	ID               uuid.UUID `json:"marker_id"`
	Membership       []string  `json:"content_set_membership"`
	BlockID          string    `json:"block_id"`
	StartOffset      *int      `json:"start_offset"`
	EndOffset        *int      `json:"end_offset"`
	ContentHash      string    `json:"content_hash"`
	SequencePosition int       `json:"sequence_position"`
	IsMerged         bool      `json:"is_merged"`
}

// PayloadRecord is one line of a content set's plaintext payload.
type PayloadRecord struct {
	MarkerID    uuid.UUID `json:"marker_id"`
	BlockID     string    `json:"block_id"`
	StartOffset *int      `json:"start_offset"`
	EndOffset   *int      `json:"end_offset"`
	Content     string    `json:"content"`
	PageNumber  int       `json:"page_number"`
}

type positionKey struct {
	blockID  string
	hasRange bool
	start    int
	end      int
}

func keyOf(a Assignment) (positionKey, error) {
	switch {
	case a.StartOffset == nil && a.EndOffset == nil:
		return positionKey{blockID: a.BlockID}, nil
	case a.StartOffset != nil && a.EndOffset != nil:
		return positionKey{blockID: a.BlockID, hasRange: true, start: *a.StartOffset, end: *a.EndOffset}, nil
	default:
		return positionKey{}, fmt.Errorf("%w: block %s", ErrMismatchedOffsets, a.BlockID)
	}
}

// Build coalesces assignments into markers and accumulates per-set
// payloads. Assignments at the same (block, start, end) collapse into
// one marker whose membership is the union of their sets; the content
// still duplicates into every member set's payload.
func Build(assignments []Assignment) ([]Marker, map[string][]byte, error) {
	if len(assignments) == 0 {
		return nil, nil, ErrNoAssignments
	}

	sorted := make([]Assignment, len(assignments))
	copy(sorted, assignments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessAssignment(sorted[i], sorted[j])
	})

	markers := make([]Marker, 0, len(sorted))
	index := make(map[positionKey]int, len(sorted))
	payloads := make(map[string]*bytes.Buffer)

	for _, a := range sorted {
		key, err := keyOf(a)
		if err != nil {
			return nil, nil, err
		}

		idx, exists := index[key]
		if !exists {
			m := Marker{
				ID:               uuid.New(),
				Membership:       []string{a.SetIdentifier},
				BlockID:          a.BlockID,
				StartOffset:      a.StartOffset,
				EndOffset:        a.EndOffset,
				ContentHash:      envelope.HashHex([]byte(a.SelectedText)),
				SequencePosition: len(markers) + 1,
			}
			markers = append(markers, m)
			idx = len(markers) - 1
			index[key] = idx
		} else {
			m := &markers[idx]
			if !contains(m.Membership, a.SetIdentifier) {
				m.Membership = append(m.Membership, a.SetIdentifier)
			}
			if len(m.Membership) >= 2 {
				m.IsMerged = true
			}
		}

		record := PayloadRecord{
			MarkerID:    markers[idx].ID,
			BlockID:     a.BlockID,
			StartOffset: a.StartOffset,
			EndOffset:   a.EndOffset,
			Content:     a.SelectedText,
			PageNumber:  a.PageNumber,
		}
		line, err := json.Marshal(record)
		if err != nil {
			return nil, nil, fmt.Errorf("encode payload record: %w", err)
		}
		buf, ok := payloads[a.SetIdentifier]
		if !ok {
			buf = &bytes.Buffer{}
			payloads[a.SetIdentifier] = buf
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	out := make(map[string][]byte, len(payloads))
	for set, buf := range payloads {
		out[set] = buf.Bytes()
	}
	return markers, out, nil
}

func lessAssignment(a, b Assignment) bool {
	if a.BlockID != b.BlockID {
		return a.BlockID < b.BlockID
	}
	if c := compareOffset(a.StartOffset, b.StartOffset); c != 0 {
		return c < 0
	}
	if c := compareOffset(a.EndOffset, b.EndOffset); c != 0 {
		return c < 0
	}
	return a.SetIdentifier < b.SetIdentifier
}

// compareOffset orders nil before any value.
func compareOffset(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// baseEntry is the only marker projection that reaches the base
// document.
type baseEntry struct {
	MarkerID         uuid.UUID `json:"marker_id"`
	BlockID          string    `json:"block_id"`
	StartOffset      *int      `json:"start_offset"`
	EndOffset        *int      `json:"end_offset"`
	SequencePosition int       `json:"sequence_position"`
}

// EncodeBase serializes the redacted structural view of the markers,
// ordered by sequence position.
func EncodeBase(markers []Marker) ([]byte, error) {
	entries := make([]baseEntry, len(markers))
	for i, m := range markers {
		entries[i] = baseEntry{
			MarkerID:         m.ID,
			BlockID:          m.BlockID,
			StartOffset:      m.StartOffset,
			EndOffset:        m.EndOffset,
			SequencePosition: m.SequencePosition,
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SequencePosition < entries[j].SequencePosition
	})
	encoded, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode base document: %w", err)
	}
	return encoded, nil
}

// ParsePayload decodes a newline-delimited payload into a lookup by
// marker id. The first record wins on duplicates.
func ParsePayload(data []byte) (map[uuid.UUID]PayloadRecord, error) {
	out := make(map[uuid.UUID]PayloadRecord)
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec PayloadRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode payload record: %w", err)
		}
		if _, ok := out[rec.MarkerID]; !ok {
			out[rec.MarkerID] = rec
		}
	}
	return out, nil
}
