package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Version strings are treated as sequences of dot/hyphen-delimited chunks.
// Numeric chunks compare numerically, everything else lexically, so "10.0"
// orders after "9.9".

var unstableVersionPattern = regexp.MustCompile(
	`(^Available versions:|-src|-dev|-latest|-stm|[-.]rc|-milestone|-alpha|-beta|[-.]pre|-next|(a|b|c)[0-9]+|snapshot|master)`,
)

func splitVersionChunks(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-'
	})
}

func chunkNumber(chunk string) (uint64, bool) {
	if chunk == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(chunk, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func compareChunks(a, b string) int {
	an, aNumeric := chunkNumber(a)
	bn, bNumeric := chunkNumber(b)
	if aNumeric && bNumeric {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// CompareVersions orders two version strings chunk-wise. A version that is a
// strict chunk prefix of another orders first ("1.2" before "1.2.0").
func CompareVersions(a, b string) int {
	ac := splitVersionChunks(a)
	bc := splitVersionChunks(b)
	for i := 0; i < len(ac) && i < len(bc); i++ {
		if c := compareChunks(ac[i], bc[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ac) < len(bc):
		return -1
	case len(ac) > len(bc):
		return 1
	default:
		return 0
	}
}

// SortVersions sorts version strings ascending, chunk-wise.
func SortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
}

// MatchesPrefix reports whether candidate equals prefix or extends it at a
// chunk boundary, so "1.2" matches "1.2.5" but not "1.20.1".
func MatchesPrefix(candidate, prefix string) bool {
	if candidate == prefix {
		return true
	}
	if !strings.HasPrefix(candidate, prefix) {
		return false
	}
	next := candidate[len(prefix)]
	return next == '.' || next == '-'
}

// IsStableVersion reports whether v looks like a release rather than a
// prerelease, development snapshot, or plugin noise line.
func IsStableVersion(v string) bool {
	return !unstableVersionPattern.MatchString(v)
}

// MatchingVersions filters versions against a query token. An exact match
// always passes, even for unstable-looking versions; fuzzy matches are
// restricted to stable versions extending the query at a chunk boundary.
// The query "latest" matches every stable version starting with a digit.
func MatchingVersions(versions []string, query string) []string {
	matched := make([]string, 0, len(versions))
	if query == "latest" {
		for _, v := range versions {
			if IsStableVersion(v) && leadingDigit(v) {
				matched = append(matched, v)
			}
		}
		return matched
	}
	for _, v := range versions {
		if v == query {
			matched = append(matched, v)
			continue
		}
		if IsStableVersion(v) && MatchesPrefix(v, query) {
			matched = append(matched, v)
		}
	}
	return matched
}

// FindLatestStable returns the last stable-looking entry of an ascending
// version list.
func FindLatestStable(versions []string) (string, bool) {
	for i := len(versions) - 1; i >= 0; i-- {
		if IsStableVersion(versions[i]) {
			return versions[i], true
		}
	}
	return "", false
}

// VersionSub subtracts sub from orig component-wise and truncates the result
// to sub's chunk count, e.g. VersionSub("18.2.3", "2") == "16" and
// VersionSub("18.2.3", "0.1") == "18.1".
func VersionSub(orig, sub string) (string, error) {
	const op = "domain.VersionSub"
	origChunks := splitVersionChunks(orig)
	subChunks := splitVersionChunks(sub)
	if len(origChunks) == 0 || len(subChunks) == 0 {
		return "", E(CodeInvalidArgument, op, fmt.Sprintf("cannot subtract %q from %q", sub, orig), nil)
	}
	if len(subChunks) > len(origChunks) {
		return "", E(CodeInvalidArgument, op, fmt.Sprintf("%q has more components than %q", sub, orig), nil)
	}
	out := make([]string, len(subChunks))
	for i := range subChunks {
		on, ok := chunkNumber(origChunks[i])
		if !ok {
			return "", E(CodeInvalidArgument, op, fmt.Sprintf("non-numeric component %q in %q", origChunks[i], orig), nil)
		}
		sn, ok := chunkNumber(subChunks[i])
		if !ok {
			return "", E(CodeInvalidArgument, op, fmt.Sprintf("non-numeric component %q in %q", subChunks[i], sub), nil)
		}
		if sn > on {
			return "", E(CodeInvalidArgument, op, fmt.Sprintf("subtracting %q from %q underflows", sub, orig), nil)
		}
		out[i] = strconv.FormatUint(on-sn, 10)
	}
	return strings.Join(out, "."), nil
}

func leadingDigit(v string) bool {
	return len(v) > 0 && v[0] >= '0' && v[0] <= '9'
}
