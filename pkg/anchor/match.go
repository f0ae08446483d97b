package anchor

import "strings"

// DefaultThreshold is the similarity a window must reach to count as a hit
const DefaultThreshold = 0.60

// BestWindow slides a window of the keyword's length over chars and returns
// the most similar window [start, end) if its score reaches threshold.
// Characters are normalized one at a time so indices stay aligned with
// their boxes. On ties the earliest window wins.
func BestWindow(chars []Character, keyword string, threshold float64) (start, end int, score float64, ok bool) {
	key := []rune(Normalize(keyword))
	n := len(key)
	// a window is exactly n characters, so shorter pages cannot match
	if n == 0 || len(chars) < n {
		return 0, 0, 0, false
	}

	texts := make([]string, len(chars))
	for i, c := range chars {
		texts[i] = Normalize(c.Text)
	}

	best, bestStart := 0.0, -1
	for i := 0; i+n <= len(chars); i++ {
		window := []rune(strings.Join(texts[i:i+n], ""))
		if s := ratio(key, window); s > best {
			best, bestStart = s, i
		}
	}

	if bestStart < 0 || best < threshold {
		return 0, 0, best, false
	}
	return bestStart, bestStart + n, best, true
}

// Ratio returns the Ratcliff-Obershelp similarity 2*M/T of a and b, where M
// is the number of characters in matching blocks and T the total length.
func Ratio(a, b string) float64 {
	return ratio([]rune(a), []rune(b))
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingCharacters(a, b)) / float64(total)
}

// matchingCharacters sums the sizes of the matching blocks: the longest
// common block, then recursively the blocks left and right of it.
func matchingCharacters(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(a), 0, len(b)}}
	matched := 0

	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest common block of a[alo:ahi] and b[blo:bhi].
// Among equally long blocks the one starting earliest in a, then in b, wins.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				cur[j+1] = 0
				continue
			}
			k := prev[j] + 1
			cur[j+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
		for j := range cur {
			cur[j] = 0
		}
	}
	return besti, bestj, bestk
}
