package service

import (
	"strings"
	"unicode/utf8"

	"github.com/timmy/civicembed/internal/domain"
)

// Chunk splits text into overlapping windows of size runes, advancing by
// size-overlap runes. The text is trimmed first and blank windows are dropped.
// A window is the last one once its end plus overlap reaches the text length,
// so the final chunk absorbs a tail of up to overlap runes instead of ending as
// a separate fragment that repeats the previous overlap. Text no longer than
// size+overlap never yields more than one chunk, and a text of 2700 runes at
// 1400/200 yields two chunks rather than three.
func Chunk(text string, size, overlap int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if size <= 0 {
		return []string{trimmed}
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(trimmed)
	n := len(runes)
	step := size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < n; start += step {
		end := start + size
		if end+overlap >= n {
			end = n
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == n {
			break
		}
	}
	return chunks
}

// BuildBillSummary returns the text embedded as a bill's summary: its title,
// then its summary or, without one, an excerpt of up to fallbackChars runes of
// fullText. Blank parts are omitted.
func BuildBillSummary(bill *domain.Bill, fullText string, fallbackChars int) string {
	title := firstNonBlank(deref(bill.ShortTitle), deref(bill.Title))

	body := strings.TrimSpace(deref(bill.Summary))
	if body == "" {
		body = truncateText(strings.TrimSpace(fullText), fallbackChars)
	}

	return joinBlocks(title, body)
}

// BuildTestimonyContent renders the witness, representing and position lines
// followed by the comment and notes blocks. Absent fields are omitted.
func BuildTestimonyContent(t *domain.Testimony) string {
	var header []string
	if name := strings.TrimSpace(deref(t.WitnessName)); name != "" {
		header = append(header, "Witness: "+name)
	}
	if rep := strings.TrimSpace(deref(t.Representing)); rep != "" {
		header = append(header, "Representing: "+rep)
	}
	if pos := PositionLabel(deref(t.Position)); pos != "" {
		header = append(header, "Position: "+pos)
	}

	var comment, notes string
	if c := strings.TrimSpace(deref(t.Comment)); c != "" {
		comment = "Comment:\n" + c
	}
	if n := strings.TrimSpace(deref(t.Notes)); n != "" {
		notes = "Notes:\n" + n
	}

	return joinBlocks(strings.Join(header, "\n"), comment, notes)
}

// PositionLabel maps a raw testimony position onto For, Against or Neutral.
// Unrecognized values come back trimmed but otherwise verbatim.
func PositionLabel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	key := strings.ToLower(trimmed)
	key = strings.NewReplacer("-", " ", "_", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")

	switch key {
	case "":
		return ""
	case "for", "support", "supports", "pro", "proponent", "in favor", "in support", "yes":
		return "For"
	case "against", "oppose", "opposes", "opposed", "con", "opponent", "no":
		return "Against"
	case "neutral", "other", "informational", "information only", "on", "none":
		return "Neutral"
	default:
		return trimmed
	}
}

// SelectDonorDisplayParts picks the most frequent non-blank employer and
// occupation. Among tied values the one seen first wins.
func SelectDonorDisplayParts(employers, occupations []string) (employer, occupation string) {
	return mostFrequent(employers), mostFrequent(occupations)
}

// BuildDonorContent renders a donor's name with the employer and occupation
// when they are known.
func BuildDonorContent(name, employer, occupation string) string {
	lines := []string{}
	if n := strings.TrimSpace(name); n != "" {
		lines = append(lines, n)
	}
	if e := strings.TrimSpace(employer); e != "" {
		lines = append(lines, "Employer: "+e)
	}
	if o := strings.TrimSpace(occupation); o != "" {
		lines = append(lines, "Occupation: "+o)
	}
	return strings.Join(lines, "\n")
}

func mostFrequent(values []string) string {
	counts := make(map[string]int, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func joinBlocks(blocks ...string) string {
	kept := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			kept = append(kept, b)
		}
	}
	return strings.Join(kept, "\n\n")
}

// truncateText returns at most max runes of s. Non-positive max returns s.
func truncateText(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
