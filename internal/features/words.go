package features

import "strings"

// splitWords splits s on sep and drops empty segments.
func splitWords(s string, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type wordStats struct {
	shortest, longest, avg float64
}

// statsOf returns min, max and mean word length; all zero for an empty list.
func statsOf(words []string) wordStats {
	if len(words) == 0 {
		return wordStats{}
	}
	shortest, longest, total := len(words[0]), 0, 0
	for _, w := range words {
		n := len(w)
		if n < shortest {
			shortest = n
		}
		if n > longest {
			longest = n
		}
		total += n
	}
	return wordStats{
		shortest: float64(shortest),
		longest:  float64(longest),
		avg:      float64(total) / float64(len(words)),
	}
}

// charRepeat counts windows of length 2 to 5 made of a single repeated byte.
func charRepeat(words []string) int {
	count := 0
	for _, w := range words {
		for n := 2; n <= 5; n++ {
			for i := 0; i+n <= len(w); i++ {
				same := true
				for j := i + 1; j < i+n; j++ {
					if w[j] != w[i] {
						same = false
						break
					}
				}
				if same {
					count++
				}
			}
		}
	}
	return count
}
