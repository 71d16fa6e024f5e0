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

// Answers holds the gold answer spans of an example, SQuAD style.
type Answers struct {
	Text        []string `json:"text"`
	AnswerStart []int    `json:"answer_start"`
}

// RawExample is a dataset record as loaded from disk. Context is the gold context.
type RawExample struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Context  string  `json:"context"`
	Question string  `json:"question"`
	Answers  Answers `json:"answers"`
}

// ExampleWithScore is the outcome of retrieval evaluation for one example.
type ExampleWithScore struct {
	ID             string  `json:"id"`
	Question       string  `json:"question"`
	Retrieved      int     `json:"retrieved"`
	ReciprocalRank float64 `json:"reciprocal_rank"`
}

// ExampleWithContext pairs an example with the context the reader is given,
// the gold context in reader mode or the assembled retrieval in e2e mode.
type ExampleWithContext struct {
	Example RawExample
	Context string
}

// Prediction is the reader output for one example, scored against its gold answers.
type Prediction struct {
	ID         string  `json:"id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Score      float64 `json:"score"`
	ExactMatch float64 `json:"exact_match"`
	F1         float64 `json:"f1"`
}
