package captions

import "strings"

// PlainText joins the track's cue text into a transcript. Only automatic
// captions roll, so only they get their overlap collapsed; manual and
// speech-to-text cues are kept word for word.
func (t *Track) PlainText() string {
	if t.Source == SourceAuto {
		return ToPlainText(t.Cues)
	}
	return JoinText(t.Cues)
}

// JoinText joins cue text into a transcript without dropping anything.
func JoinText(cues []Cue) string {
	var out []string
	for _, c := range cues {
		out = append(out, strings.Fields(c.Text)...)
	}
	return strings.Join(out, " ")
}

// ToPlainText joins rolling cue text into a transcript. Rolling captions
// repeat the tail of the previous cue at the head of the next one; only the
// words that extend the previous cue are kept.
func ToPlainText(cues []Cue) string {
	var out []string
	var prev []string

	for _, c := range cues {
		words := strings.Fields(c.Text)
		if len(words) == 0 {
			continue
		}
		k := overlap(prev, words)
		out = append(out, words[k:]...)
		prev = words
	}

	return strings.Join(out, " ")
}

// overlap returns the length of the longest suffix of prev that is also a
// prefix of next.
func overlap(prev, next []string) int {
	n := min(len(prev), len(next))
	for k := n; k > 0; k-- {
		if equalWords(prev[len(prev)-k:], next[:k]) {
			return k
		}
	}
	return 0
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
