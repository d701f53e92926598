// internal/dispatch/search.go
package dispatch

import (
	"regexp"
	"strconv"
	"strings"
)

// SearchGroups filters groups by a free-text query. A group matches when
// the query equals its id, or equals or is a rule tag in key:value form, a
// tag key, or a tag value, or when it matches (case-insensitive regular
// expression) the name of an alarm group its rules notify. An invalid
// expression is matched literally. A blank query returns every group.
func SearchGroups(groups []*Group, query string, userGroupNames map[int64]string) []*Group {
	q := strings.TrimSpace(query)
	if q == "" {
		return groups
	}
	re, err := regexp.Compile("(?i)" + q)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(q))
	}

	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		if groupMatches(g, q, re, userGroupNames) {
			out = append(out, g)
		}
	}
	return out
}

func groupMatches(g *Group, q string, re *regexp.Regexp, names map[int64]string) bool {
	if strconv.FormatInt(g.ID, 10) == q {
		return true
	}
	for _, r := range g.Rules {
		for _, t := range r.AdditionalTags {
			if t.String() == q || t.Key == q || t.Value == q {
				return true
			}
		}
		for _, id := range r.UserGroups {
			if name, ok := names[id]; ok && re.MatchString(name) {
				return true
			}
		}
	}
	return false
}
