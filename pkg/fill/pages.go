package fill

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/novvoo/go-pdffill/pkg/logging"
)

// ParsePageSelection parses "all" or a comma list of pages and a-b ranges
// into sorted, de-duplicated zero-based indexes. Unparseable or out of
// range parts are logged and skipped. An empty selection yields nothing.
func ParsePageSelection(sel string, total int, oneBased bool, logger *slog.Logger) []int {
	logger = logging.OrNop(logger)
	sel = strings.ToLower(strings.TrimSpace(sel))
	if sel == "" {
		return []int{}
	}
	if sel == "all" {
		return allPages(total)
	}

	seen := make(map[int]bool)
	add := func(page int) {
		i := page
		if oneBased {
			i--
		}
		if i < 0 || i >= total {
			// as the user wrote it
			logger.Warn("page out of range ignored", "page", page, "total", total)
			return
		}
		seen[i] = true
	}

	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				logger.Warn("invalid page range ignored", "range", part)
				continue
			}
			if start > end {
				start, end = end, start
			}
			for i := start; i <= end; i++ {
				add(i)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			logger.Warn("invalid page ignored", "page", part)
			continue
		}
		add(n)
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func allPages(total int) []int {
	out := make([]int, total)
	for i := range out {
		out[i] = i
	}
	return out
}
