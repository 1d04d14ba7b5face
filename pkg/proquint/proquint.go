// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package proquint renders integers as proquints, pronounceable strings of
// alternating consonants and vowels, and parses them back. Mount handles are
// shown to operators this way.
//
// Four bits map to a consonant, two bits to a vowel:
//
//	0 1 2 3 4 5 6 7 8 9 A B C D E F      0 1 2 3
//	b d f g h j k l m n p r s t v z      a i o u
//
// A 16-bit word is con-vo-con-vo-con, most significant bits first. Wider
// integers are 16-bit words joined by '-', most significant word first.
package proquint

import (
	"fmt"
	"strings"
)

const (
	consonants = "bdfghjklmnprstvz"
	vowels     = "aiou"

	wordLen = 5
)

// SyntaxError reports a string that is not a proquint of the expected width.
type SyntaxError struct {
	Quint string
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("proquint: %q: %s", e.Quint, e.Msg)
}

func appendWord(b []byte, w uint16) []byte {
	return append(b,
		consonants[w>>12&0xf],
		vowels[w>>10&0x3],
		consonants[w>>6&0xf],
		vowels[w>>4&0x3],
		consonants[w&0xf],
	)
}

func encode(v uint64, words int) string {
	b := make([]byte, 0, words*(wordLen+1))
	for i := words - 1; i >= 0; i-- {
		if len(b) > 0 {
			b = append(b, '-')
		}
		b = appendWord(b, uint16(v>>(16*i)))
	}
	return string(b)
}

func Encode16(v uint16) string { return encode(uint64(v), 1) }
func Encode32(v uint32) string { return encode(uint64(v), 2) }
func Encode64(v uint64) string { return encode(v, 4) }

func decodeWord(quint, word string) (uint16, error) {
	if len(word) != wordLen {
		return 0, &SyntaxError{quint, fmt.Sprintf("word %q is not %d letters", word, wordLen)}
	}
	var w uint16
	for i := 0; i < wordLen; i++ {
		c := word[i]
		if i%2 == 0 {
			d := strings.IndexByte(consonants, c)
			if d < 0 {
				return 0, &SyntaxError{quint, fmt.Sprintf("%q is not a proquint consonant", c)}
			}
			w = w<<4 | uint16(d)
		} else {
			d := strings.IndexByte(vowels, c)
			if d < 0 {
				return 0, &SyntaxError{quint, fmt.Sprintf("%q is not a proquint vowel", c)}
			}
			w = w<<2 | uint16(d)
		}
	}
	return w, nil
}

func decode(quint string, words int) (uint64, error) {
	parts := strings.Split(quint, "-")
	if len(parts) != words {
		return 0, &SyntaxError{quint, fmt.Sprintf("want %d words, have %d", words, len(parts))}
	}
	var v uint64
	for _, p := range parts {
		w, err := decodeWord(quint, p)
		if err != nil {
			return 0, err
		}
		v = v<<16 | uint64(w)
	}
	return v, nil
}

func Decode16(quint string) (uint16, error) {
	v, err := decode(quint, 1)
	return uint16(v), err
}

func Decode32(quint string) (uint32, error) {
	v, err := decode(quint, 2)
	return uint32(v), err
}

func Decode64(quint string) (uint64, error) {
	return decode(quint, 4)
}
