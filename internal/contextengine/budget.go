package contextengine

import (
	"unicode/utf8"
)

const (
	ellipsis = "..."
	// minTruncatedLen is the length below which a near block is never truncated.
	minTruncatedLen = 200
)

// TrimSummaryBlocks fits tiers into maxChars runes. It drops far blocks oldest first, then mid blocks oldest first, and
// finally truncates near blocks oldest first with an ellipsis, never below minTruncatedLen runes plus the ellipsis.
// The result may exceed maxChars when the near blocks cannot shrink further. A non-positive maxChars disables
// trimming.
func TrimSummaryBlocks(tiers Tiers, maxChars int) Tiers {
	out := Tiers{
		Far:  append([]SummaryBlock(nil), tiers.Far...),
		Mid:  append([]SummaryBlock(nil), tiers.Mid...),
		Near: append([]SummaryBlock(nil), tiers.Near...),
	}
	if maxChars <= 0 {
		return out
	}

	total := out.Len()
	for total > maxChars && len(out.Far) > 0 {
		total -= runeLen(out.Far[0].Text)
		out.Far = out.Far[1:]
	}
	for total > maxChars && len(out.Mid) > 0 {
		total -= runeLen(out.Mid[0].Text)
		out.Mid = out.Mid[1:]
	}
	for i := range out.Near {
		if total <= maxChars {
			break
		}
		text := out.Near[i].Text
		length := runeLen(text)
		keep := max(minTruncatedLen, maxChars-(total-length)-len(ellipsis))
		if keep+len(ellipsis) >= length {
			continue
		}
		out.Near[i].Text = truncateRunes(text, keep) + ellipsis
		total += runeLen(out.Near[i].Text) - length
	}
	return out
}

func blocksLen(blocks []SummaryBlock) int {
	n := 0
	for _, b := range blocks {
		n += runeLen(b.Text)
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
