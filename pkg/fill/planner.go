package fill

import (
	"log/slog"

	"github.com/novvoo/go-pdffill/pkg/anchor"
	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/logging"
)

// KeywordHit is a located keyword. BBox is in extraction space, Anchor in
// drawing space (bottom-left origin) with the default offsets applied.
type KeywordHit struct {
	PageIndex int
	BBox      anchor.Rect
	Anchor    anchor.Point
	Keyword   string
	Score     float64
}

// Stats counts the outcome of a plan. Only non-blank values are counted.
type Stats struct {
	Total   int
	Matched []string
	Missing []string
}

// Planner turns values into a draw plan
type Planner struct {
	Overrides *anchor.Overrides
	// Threshold is the minimum match score in [0, 1]; nil means
	// anchor.DefaultThreshold
	Threshold *float64
	// Separator splits alias keys; 0 means anchor.AliasSeparator
	Separator rune
	// DefaultPage is searched when neither an override nor a page
	// selection names pages
	DefaultPage int
	Logger      *slog.Logger
}

func (p *Planner) threshold() float64 {
	if p.Threshold == nil {
		return anchor.DefaultThreshold
	}
	return *p.Threshold
}

func (p *Planner) separator() rune {
	if p.Separator == 0 {
		return anchor.AliasSeparator
	}
	return p.Separator
}

// FindKeyword locates keyword on one page. A keyword that scores below
// threshold returns a KeywordNotLocated error.
func (p *Planner) FindKeyword(src Source, keyword string, page int, threshold float64) (*KeywordHit, error) {
	if page < 0 || page >= src.NumPages() {
		return nil, fillerr.Errorf(fillerr.PageIndexOutOfRange, "find "+keyword,
			"page %d of %d", page, src.NumPages())
	}
	chars, err := src.Characters(page)
	if err != nil {
		return nil, err
	}
	start, end, score, ok := anchor.BestWindow(chars, keyword, threshold)
	if !ok {
		return nil, fillerr.Errorf(fillerr.KeywordNotLocated, "find "+keyword,
			"best score %.2f below %.2f on page %d", score, threshold, page)
	}
	geom, err := src.Geometry(page)
	if err != nil {
		return nil, err
	}

	box := anchor.BBoxOf(chars, start, end)
	right := anchor.RightOfBaseline(box, anchor.DefaultOffsetX, anchor.DefaultOffsetY)
	return &KeywordHit{
		PageIndex: page,
		BBox:      box,
		Anchor:    anchor.Point{X: right.X, Y: anchor.ToDrawingY(right.Y, geom.Height)},
		Keyword:   keyword,
		Score:     score,
	}, nil
}

// Plan locates every value's keyword and positions the value. pages is the
// search order for keywords without a page override; nil searches only the
// default page. Keywords that cannot be located are recorded as missing;
// only document-level failures return an error.
func (p *Planner) Plan(src Source, values Values, pages []int) (*layout.DrawPlan, Stats, error) {
	logger := logging.OrNop(p.Logger)
	sep := p.separator()
	threshold := p.threshold()
	overrides := p.Overrides
	if overrides == nil {
		overrides = &anchor.Overrides{}
	}

	plan := layout.NewDrawPlan()
	var stats Stats
	for _, v := range values.Sanitize() {
		stats.Total++
		canonical, ov, _ := overrides.Resolve(v.Key, sep)

		candidates := anchor.SplitAliases(v.Key, sep)
		candidates = appendMissing(candidates, ov.AliasList()...)
		if canonical != "" {
			candidates = appendMissing(candidates, canonical)
		}

		search := pages
		if page, ok := ov.PageIndex(); ok {
			search = []int{page}
		} else if search == nil {
			search = []int{p.DefaultPage}
		}

		hit, err := p.search(src, search, candidates, threshold)
		if err != nil {
			switch {
			case fillerr.Is(err, fillerr.PageIndexOutOfRange):
				logger.Warn("keyword page out of range", "key", v.Key, "error", err)
			case fillerr.Is(err, fillerr.KeywordNotLocated):
				logger.Debug("keyword not located", "key", v.Key, "candidates", candidates)
			default:
				return nil, stats, err
			}
			stats.Missing = append(stats.Missing, v.Key)
			continue
		}

		dx, dy := ov.Offsets()
		pos := anchor.ApplyOffset(hit.Anchor, dx-anchor.DefaultOffsetX, dy-anchor.DefaultOffsetY)
		item := layout.DrawItem{Key: v.Key, Text: v.Value, X: pos.X, Y: pos.Y}
		if ov != nil {
			item.MaxWidth = ov.MaxWidth
			item.LineSpacing = ov.LineSpacing
		}
		plan.Add(hit.PageIndex, item)
		stats.Matched = append(stats.Matched, v.Key)
		logger.Debug("keyword located",
			"key", v.Key,
			"keyword", hit.Keyword,
			"page", hit.PageIndex,
			"score", hit.Score,
			"x", pos.X,
			"y", pos.Y)
	}

	if plan.Len() == 0 && stats.Total > 0 {
		logger.Warn("no keyword located, nothing to draw", "total", stats.Total)
	}
	return plan, stats, nil
}

// search tries every candidate on each page in order; the first hit wins
func (p *Planner) search(src Source, pages []int, candidates []string, threshold float64) (*KeywordHit, error) {
	var lastErr error
	for _, page := range pages {
		for _, c := range candidates {
			hit, err := p.FindKeyword(src, c, page, threshold)
			if err == nil {
				return hit, nil
			}
			if !fillerr.Is(err, fillerr.KeywordNotLocated) && !fillerr.Is(err, fillerr.PageIndexOutOfRange) {
				return nil, err
			}
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fillerr.Errorf(fillerr.KeywordNotLocated, "search", "no pages to search")
	}
	return nil, lastErr
}

// appendMissing appends items not yet in list
func appendMissing(list []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, have := range list {
			if have == it {
				found = true
				break
			}
		}
		if !found {
			list = append(list, it)
		}
	}
	return list
}
