// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package eval

import (
	"regexp"
	"strings"
)

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var articles = regexp.MustCompile(`\b(a|an|the)\b`)

// normalizeAnswer lower cases s, strips punctuation and articles and
// collapses whitespace, as the SQuAD evaluation script does.
func normalizeAnswer(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
	s = articles.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func exactMatch(prediction, gold string) float64 {
	if normalizeAnswer(prediction) == normalizeAnswer(gold) {
		return 1
	}
	return 0
}

func f1Score(prediction, gold string) float64 {
	predTokens := strings.Fields(normalizeAnswer(prediction))
	goldTokens := strings.Fields(normalizeAnswer(gold))

	common := make(map[string]int, len(goldTokens))
	for _, t := range goldTokens {
		common[t]++
	}
	same := 0
	for _, t := range predTokens {
		if common[t] > 0 {
			common[t]--
			same++
		}
	}
	if same == 0 {
		return 0
	}

	precision := float64(same) / float64(len(predTokens))
	recall := float64(same) / float64(len(goldTokens))
	return 2 * precision * recall / (precision + recall)
}

// ScoreAnswer returns the exact match and F1 of prediction against the best
// matching gold answer. An example with no gold answers is unanswerable and
// scores 1 only for an empty prediction.
func ScoreAnswer(prediction string, golds []string) (em float64, f1 float64) {
	if len(golds) == 0 {
		if normalizeAnswer(prediction) == "" {
			return 1, 1
		}
		return 0, 0
	}

	for _, g := range golds {
		em = max(em, exactMatch(prediction, g))
		f1 = max(f1, f1Score(prediction, g))
	}
	return em, f1
}
