package analyser

import "github.com/scraplink/linkaudit/internal/types"

// classifyCandidates derives the overall link classification from the
// union of rel tokens across every matched candidate (SPEC_FULL.md
// §4.3 step 3). Any sponsored match makes the result sponsored, else
// any ugc match makes it ugc; otherwise a single matching link without
// nofollow makes the whole result dofollow, since the page extends at
// least one unrestricted path to the target, and only an all-nofollow
// set is nofollow.
func classifyCandidates(candidates []Candidate) types.LinkClass {
	if len(candidates) == 0 {
		return types.LinkClassAbsent
	}

	anySponsored := false
	anyUGC := false
	anyWithoutNofollow := false

	for _, c := range candidates {
		switch {
		case hasRelToken(c.Rel, "sponsored"):
			anySponsored = true
		case hasRelToken(c.Rel, "ugc"):
			anyUGC = true
		}
		if !hasRelToken(c.Rel, "nofollow") {
			anyWithoutNofollow = true
		}
	}

	switch {
	case anySponsored:
		return types.LinkClassSponsored
	case anyUGC:
		return types.LinkClassUGC
	case anyWithoutNofollow:
		return types.LinkClassDofollow
	default:
		return types.LinkClassNofollow
	}
}

// bestMatchedHTML picks the candidate to report as MatchedAnchorHTML:
// the first dofollow-eligible match if one exists, else the first
// match overall, so a mixed nofollow+dofollow page doesn't report a
// nofollow snippet for a dofollow verdict.
func bestMatchedHTML(candidates []Candidate, class types.LinkClass) string {
	if len(candidates) == 0 {
		return ""
	}
	if class == types.LinkClassDofollow {
		for _, c := range candidates {
			if !hasRelToken(c.Rel, "nofollow") {
				return c.OuterHTML
			}
		}
	}
	return candidates[0].OuterHTML
}
