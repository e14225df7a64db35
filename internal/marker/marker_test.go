package marker

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
)

func intp(v int) *int { return &v }

func threeSetAssignments() []Assignment {
	return []Assignment{
		{SetIdentifier: "CS-PUBLIC", BlockID: "block-1", StartOffset: intp(0), EndOffset: intp(17), SelectedText: "Public statement.", PageNumber: 1},
		{SetIdentifier: "CS-CONFIDENTIAL", BlockID: "block-2", StartOffset: intp(0), EndOffset: intp(13), SelectedText: "Budget $4.2M.", PageNumber: 1},
		{SetIdentifier: "CS-SECRET", BlockID: "block-3", StartOffset: intp(0), EndOffset: intp(12), SelectedText: "Agent Smith.", PageNumber: 2},
	}
}

func TestBuildAssignsSequentialPositions(t *testing.T) {
	markers, payloads, err := Build(threeSetAssignments())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(markers) != 3 {
		t.Fatalf("got %d markers, want 3", len(markers))
	}
	for i, m := range markers {
		if m.SequencePosition != i+1 {
			t.Errorf("marker %d sequence = %d", i, m.SequencePosition)
		}
		if m.IsMerged {
			t.Errorf("marker %d unexpectedly merged", i)
		}
		if len(m.Membership) != 1 {
			t.Errorf("marker %d membership = %v", i, m.Membership)
		}
	}
	if len(payloads) != 3 {
		t.Fatalf("got %d payloads, want 3", len(payloads))
	}
}

func TestBuildMergesCoincidentPositions(t *testing.T) {
	assignments := append(threeSetAssignments(), Assignment{
		SetIdentifier: "CS-SECRET",
		BlockID:       "block-2",
		StartOffset:   intp(0),
		EndOffset:     intp(13),
		SelectedText:  "Budget $4.2M.",
		PageNumber:    1,
	})

	markers, payloads, err := Build(assignments)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(markers) != 3 {
		t.Fatalf("got %d markers, want 3 (coincident assignment must merge)", len(markers))
	}

	var budget *Marker
	for i := range markers {
		if markers[i].BlockID == "block-2" {
			budget = &markers[i]
		}
	}
	if budget == nil {
		t.Fatal("no marker for block-2")
	}
	if !budget.IsMerged {
		t.Error("merged marker not flagged")
	}
	wantMembership := []string{"CS-CONFIDENTIAL", "CS-SECRET"}
	if len(budget.Membership) != 2 || budget.Membership[0] != wantMembership[0] || budget.Membership[1] != wantMembership[1] {
		t.Errorf("membership = %v, want %v", budget.Membership, wantMembership)
	}

	// The overlapping content duplicates into both member payloads under
	// the same marker id.
	for _, set := range wantMembership {
		records, err := ParsePayload(payloads[set])
		if err != nil {
			t.Fatalf("ParsePayload(%s): %v", set, err)
		}
		rec, ok := records[budget.ID]
		if !ok {
			t.Fatalf("payload %s is missing the merged marker", set)
		}
		if rec.Content != "Budget $4.2M." {
			t.Errorf("payload %s content = %q", set, rec.Content)
		}
	}
}

func TestBuildDeduplicatesMembership(t *testing.T) {
	a := Assignment{SetIdentifier: "CS-A", BlockID: "b", StartOffset: intp(1), EndOffset: intp(5), SelectedText: "x"}
	markers, _, err := Build([]Assignment{a, a})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(markers) != 1 {
		t.Fatalf("got %d markers, want 1", len(markers))
	}
	if len(markers[0].Membership) != 1 {
		t.Errorf("membership = %v, want single entry", markers[0].Membership)
	}
	if markers[0].IsMerged {
		t.Error("single-set duplicate flagged as merged")
	}
}

func TestBuildWholeBlockAndRangeAreDistinct(t *testing.T) {
	assignments := []Assignment{
		{SetIdentifier: "CS-A", BlockID: "b", SelectedText: "whole"},
		{SetIdentifier: "CS-A", BlockID: "b", StartOffset: intp(0), EndOffset: intp(5), SelectedText: "range"},
	}
	markers, _, err := Build(assignments)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("got %d markers, want 2", len(markers))
	}
	// Whole-block sorts before any ranged assignment of the same block.
	if markers[0].StartOffset != nil {
		t.Error("whole-block marker not first")
	}
}

func TestBuildRejectsMismatchedOffsets(t *testing.T) {
	bad := []Assignment{{SetIdentifier: "CS-A", BlockID: "b", StartOffset: intp(1), SelectedText: "x"}}
	if _, _, err := Build(bad); !errors.Is(err, ErrMismatchedOffsets) {
		t.Fatalf("Build = %v, want ErrMismatchedOffsets", err)
	}
}

func TestBuildRejectsEmptySet(t *testing.T) {
	if _, _, err := Build(nil); !errors.Is(err, ErrNoAssignments) {
		t.Fatalf("Build = %v, want ErrNoAssignments", err)
	}
}

func TestContentHashBoundToExactText(t *testing.T) {
	markers, _, err := Build([]Assignment{
		{SetIdentifier: "CS-A", BlockID: "b", StartOffset: intp(0), EndOffset: intp(4), SelectedText: "text"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if markers[0].ContentHash != envelope.HashHex([]byte("text")) {
		t.Error("content hash not bound to the exact selected text")
	}
}

func TestEncodeBaseIsOpaque(t *testing.T) {
	markers, _, err := Build(threeSetAssignments())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	encoded, err := EncodeBase(markers)
	if err != nil {
		t.Fatalf("EncodeBase: %v", err)
	}

	text := string(encoded)
	for _, leaked := range []string{
		"CS-PUBLIC", "CS-CONFIDENTIAL", "CS-SECRET",
		"Public statement.", "Budget", "Agent",
		"content_hash", "membership", "is_merged",
	} {
		if strings.Contains(text, leaked) {
			t.Errorf("base serialization leaks %q", leaked)
		}
	}

	var entries []map[string]any
	if err := json.Unmarshal(encoded, &entries); err != nil {
		t.Fatalf("base is not valid JSON: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("base has %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		for field := range e {
			switch field {
			case "marker_id", "block_id", "start_offset", "end_offset", "sequence_position":
			default:
				t.Errorf("entry %d carries unexpected field %q", i, field)
			}
		}
	}
}

func TestEncodeBaseOrdersBySequence(t *testing.T) {
	markers, _, err := Build(threeSetAssignments())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Shuffle, then encode.
	shuffled := []Marker{markers[2], markers[0], markers[1]}
	encoded, err := EncodeBase(shuffled)
	if err != nil {
		t.Fatalf("EncodeBase: %v", err)
	}
	var entries []struct {
		SequencePosition int `json:"sequence_position"`
	}
	if err := json.Unmarshal(encoded, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i, e := range entries {
		if e.SequencePosition != i+1 {
			t.Fatalf("entry %d sequence = %d", i, e.SequencePosition)
		}
	}
}

func TestParsePayloadRoundTrip(t *testing.T) {
	markers, payloads, err := Build(threeSetAssignments())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	records, err := ParsePayload(payloads["CS-PUBLIC"])
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	var publicMarker Marker
	for _, m := range markers {
		if m.Membership[0] == "CS-PUBLIC" {
			publicMarker = m
		}
	}
	rec, ok := records[publicMarker.ID]
	if !ok {
		t.Fatal("payload record not keyed by its marker id")
	}
	if rec.Content != "Public statement." || rec.PageNumber != 1 {
		t.Errorf("record = %+v", rec)
	}
}

func TestParsePayloadSkipsBlankLinesAndRejectsGarbage(t *testing.T) {
	if _, err := ParsePayload([]byte("\n\n")); err != nil {
		t.Fatalf("blank payload: %v", err)
	}
	if _, err := ParsePayload([]byte("{not json}\n")); err == nil {
		t.Fatal("garbage line accepted")
	}
}

func TestParsePayloadFirstRecordWins(t *testing.T) {
	id := uuid.New()
	line1, _ := json.Marshal(PayloadRecord{MarkerID: id, Content: "first"})
	line2, _ := json.Marshal(PayloadRecord{MarkerID: id, Content: "second"})
	payload := append(append(line1, '\n'), append(line2, '\n')...)

	records, err := ParsePayload(payload)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if records[id].Content != "first" {
		t.Fatalf("content = %q, want first record", records[id].Content)
	}
}
