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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
)

const shuffleSeed = 42

var ErrEmptyDataset = errors.New("dataset has no examples")

// LoadDataset reads examples from a JSON array or a JSON lines file.
func LoadDataset(path string) ([]RawExample, error) {
	if path == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes examples from a JSON array or a stream of JSON
// objects, one per line. Examples without an id are numbered by position.
func ParseDataset(data []byte) ([]RawExample, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyDataset
	}

	var examples []RawExample
	if data[0] == '[' {
		if err := json.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("parse dataset: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var ex RawExample
			err := dec.Decode(&ex)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse dataset record %d: %w", len(examples), err)
			}
			examples = append(examples, ex)
		}
	}

	if len(examples) == 0 {
		return nil, ErrEmptyDataset
	}
	for i := range examples {
		if examples[i].Question == "" {
			return nil, fmt.Errorf("dataset record %d missing question", i)
		}
		if examples[i].ID == "" {
			examples[i].ID = strconv.Itoa(i)
		}
	}
	return examples, nil
}

// Shuffle permutes examples in place with a fixed seed, so repeated runs
// over the same file evaluate the same subset.
func Shuffle(examples []RawExample) {
	rnd := rand.New(rand.NewSource(shuffleSeed))
	rnd.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
}

// Select returns the first n examples. An n of zero, or one not smaller
// than the dataset, selects everything.
func Select(examples []RawExample, n int) []RawExample {
	if n <= 0 || n >= len(examples) {
		return examples
	}
	return examples[:n]
}

// Prepare loads the dataset at path, shuffles it and selects the first
// valSetSize examples.
func Prepare(path string, valSetSize int) ([]RawExample, error) {
	examples, err := LoadDataset(path)
	if err != nil {
		return nil, err
	}
	Shuffle(examples)
	return Select(examples, valSetSize), nil
}
