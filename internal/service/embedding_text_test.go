package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/civicembed/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestChunk(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Chunk("", 10, 2))
		assert.Empty(t, Chunk("   \n\t ", 10, 2))
	})

	t.Run("non-positive size returns trimmed text", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, Chunk("  hello  ", 0, 0))
	})

	t.Run("windows advance by size minus overlap", func(t *testing.T) {
		chunks := Chunk("abcdefghijklmnopqrstuvwxyz", 10, 2)
		require.Len(t, chunks, 3)
		assert.Equal(t, "abcdefghij", chunks[0])
		assert.Equal(t, "ijklmnopqr", chunks[1])
		assert.Equal(t, "qrstuvwxyz", chunks[2])
	})

	t.Run("last window absorbs a short tail", func(t *testing.T) {
		// 11 runes with size 10 and overlap 2 fit in one window.
		assert.Equal(t, []string{"abcdefghijk"}, Chunk("abcdefghijk", 10, 2))
		assert.Equal(t, []string{"abcdefghijkl"}, Chunk("abcdefghijkl", 10, 2))
		assert.Len(t, Chunk("abcdefghijklm", 10, 2), 2)
	})

	t.Run("step never drops below one", func(t *testing.T) {
		chunks := Chunk("abcdefghij", 3, 3)
		require.Len(t, chunks, 5)
		assert.Equal(t, "abc", chunks[0])
		assert.Equal(t, "bcd", chunks[1])
		assert.Equal(t, "efghij", chunks[4])
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		text := strings.Repeat("é", 25)
		chunks := Chunk(text, 10, 2)
		require.Len(t, chunks, 3)
		for _, c := range chunks[:2] {
			assert.Equal(t, 10, runeLen(c))
		}
	})

	t.Run("blank windows are dropped", func(t *testing.T) {
		text := "abcde" + strings.Repeat(" ", 20) + "vwxyz"
		for _, c := range Chunk(text, 5, 0) {
			assert.NotEmpty(t, strings.TrimSpace(c))
		}
	})

	t.Run("long document", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 500)
		chunks := Chunk(text, 1400, 200)
		require.Len(t, chunks, 4)
		assert.Equal(t, text[:1400], chunks[0])
		assert.Equal(t, text[1200:2600], chunks[1])
		assert.Equal(t, text[3600:], chunks[3])
	})

	t.Run("non-aligned lengths", func(t *testing.T) {
		tests := []struct {
			length    int
			wantCount int
			lastStart int
		}{
			{length: 1600, wantCount: 1, lastStart: 0},
			{length: 1601, wantCount: 2, lastStart: 1200},
			{length: 2700, wantCount: 2, lastStart: 1200},
			{length: 2801, wantCount: 3, lastStart: 2400},
			{length: 3900, wantCount: 3, lastStart: 2400},
		}
		for _, tc := range tests {
			text := strings.Repeat("x", tc.length-1) + "y"
			chunks := Chunk(text, 1400, 200)
			require.Len(t, chunks, tc.wantCount, "length %d", tc.length)
			assert.Equal(t, text[tc.lastStart:], chunks[len(chunks)-1], "length %d", tc.length)
		}
	})
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("The committee heard testimony on the bill. ", 200)
	first := Chunk(text, 500, 80)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Chunk(text, 500, 80))
	}
}

func TestChunkShortTextYieldsAtMostOneChunk(t *testing.T) {
	const size, overlap = 50, 10
	for n := 0; n <= size+overlap; n++ {
		chunks := Chunk(strings.Repeat("x", n), size, overlap)
		assert.LessOrEqual(t, len(chunks), 1, "length %d", n)
	}
}

func TestBuildBillSummary(t *testing.T) {
	tests := []struct {
		name     string
		bill     domain.Bill
		fullText string
		want     string
	}{
		{
			name: "short title and summary",
			bill: domain.Bill{ShortTitle: strPtr("Clean Water Act"), Title: strPtr("An act relating to water"), Summary: strPtr("Funds wells.")},
			want: "Clean Water Act\n\nFunds wells.",
		},
		{
			name: "falls back to title",
			bill: domain.Bill{ShortTitle: strPtr("  "), Title: strPtr("An act relating to water"), Summary: strPtr("Funds wells.")},
			want: "An act relating to water\n\nFunds wells.",
		},
		{
			name:     "falls back to full text excerpt",
			bill:     domain.Bill{Title: strPtr("Water")},
			fullText: "  Section 1. The state shall fund wells.  ",
			want:     "Water\n\nSection 1.",
		},
		{
			name: "no title",
			bill: domain.Bill{Summary: strPtr("Funds wells.")},
			want: "Funds wells.",
		},
		{
			name: "nothing at all",
			bill: domain.Bill{},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildBillSummary(&tc.bill, tc.fullText, 10))
		})
	}
}

func TestBuildTestimonyContent(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		content := BuildTestimonyContent(&domain.Testimony{
			WitnessName:  strPtr("Ada Lovelace"),
			Representing: strPtr("Analytical Society"),
			Position:     strPtr("support"),
			Comment:      strPtr("Please pass this bill."),
			Notes:        strPtr("Submitted late."),
		})
		want := "Witness: Ada Lovelace\nRepresenting: Analytical Society\nPosition: For\n\n" +
			"Comment:\nPlease pass this bill.\n\nNotes:\nSubmitted late."
		assert.Equal(t, want, content)
	})

	t.Run("absent fields are omitted", func(t *testing.T) {
		content := BuildTestimonyContent(&domain.Testimony{
			Position: strPtr("Oppose"),
			Comment:  strPtr("No."),
		})
		assert.Equal(t, "Position: Against\n\nComment:\nNo.", content)
	})

	t.Run("unknown position passes through", func(t *testing.T) {
		content := BuildTestimonyContent(&domain.Testimony{Position: strPtr(" Amend ")})
		assert.Equal(t, "Position: Amend", content)
	})
}

func TestPositionLabel(t *testing.T) {
	cases := map[string]string{
		"for":              "For",
		"PRO":              "For",
		"in-favor":         "For",
		"Against":          "Against",
		"opposed":          "Against",
		"neutral":          "Neutral",
		"information_only": "Neutral",
		"":                 "",
		"  ":               "",
		"Other Thing":      "Other Thing",
	}
	for raw, want := range cases {
		assert.Equal(t, want, PositionLabel(raw), "raw %q", raw)
	}
}

func TestSelectDonorDisplayParts(t *testing.T) {
	t.Run("modal values", func(t *testing.T) {
		employer, occupation := SelectDonorDisplayParts(
			[]string{"Acme", "Globex", "Acme", ""},
			[]string{"", "Engineer", "Engineer", "Manager"},
		)
		assert.Equal(t, "Acme", employer)
		assert.Equal(t, "Engineer", occupation)
	})

	t.Run("ties go to the first value seen", func(t *testing.T) {
		employer, _ := SelectDonorDisplayParts([]string{"Globex", "Acme", "Acme", "Globex"}, nil)
		assert.Equal(t, "Globex", employer)
	})

	t.Run("blank only", func(t *testing.T) {
		employer, occupation := SelectDonorDisplayParts([]string{"", " "}, nil)
		assert.Empty(t, employer)
		assert.Empty(t, occupation)
	})
}

func TestBuildDonorContent(t *testing.T) {
	assert.Equal(t, "Jane Doe\nEmployer: Acme\nOccupation: Engineer", BuildDonorContent("Jane Doe", "Acme", "Engineer"))
	assert.Equal(t, "Jane Doe\nOccupation: Retired", BuildDonorContent(" Jane Doe ", "", "Retired"))
	assert.Equal(t, "Jane Doe", BuildDonorContent("Jane Doe", "", ""))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abcdef", 3))
	assert.Equal(t, "abcdef", truncateText("abcdef", 0))
	assert.Equal(t, "ééé", truncateText("éééé", 3))
}
