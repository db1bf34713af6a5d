// Package tokenize provides the wordpiece tokenizer used to turn raw text
// columns into fixed model inputs.
package tokenize

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
)

// DefaultModelMaxLength applies when the tokenizer config does not set one.
const DefaultModelMaxLength = 512

// Tokenizer is a vocabulary-file wordpiece tokenizer loaded alongside a
// pretrained model.
type Tokenizer struct {
	Vocab          map[string]int
	ModelMaxLength int
	LowerCase      bool

	padID, unkID, clsID, sepID int
}

type tokenizerConfig struct {
	ModelMaxLength int   `json:"model_max_length"`
	DoLowerCase    *bool `json:"do_lower_case"`
}

// Load reads vocab.txt (one token per line) and the optional
// tokenizer_config.json from a model directory.
func Load(dir string) (*Tokenizer, error) {
	file, err := os.Open(filepath.Join(dir, "vocab.txt"))
	if err != nil {
		return nil, fmt.Errorf("tokenize: opening vocabulary: %w", err)
	}
	defer file.Close()

	vocab := map[string]int{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		if token == "" {
			continue
		}
		if _, ok := vocab[token]; !ok {
			vocab[token] = len(vocab)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tokenize: reading vocabulary: %w", err)
	}

	t := &Tokenizer{
		Vocab:          vocab,
		ModelMaxLength: DefaultModelMaxLength,
		LowerCase:      true,
	}
	for _, special := range []string{PadToken, UnkToken, ClsToken, SepToken} {
		if _, ok := vocab[special]; !ok {
			return nil, fmt.Errorf("tokenize: vocabulary is missing the %s token", special)
		}
	}
	t.padID = vocab[PadToken]
	t.unkID = vocab[UnkToken]
	t.clsID = vocab[ClsToken]
	t.sepID = vocab[SepToken]

	if raw, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json")); err == nil {
		var cfg tokenizerConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("tokenize: parsing tokenizer_config.json: %w", err)
		}
		if cfg.ModelMaxLength > 0 {
			t.ModelMaxLength = cfg.ModelMaxLength
		}
		if cfg.DoLowerCase != nil {
			t.LowerCase = *cfg.DoLowerCase
		}
	}
	return t, nil
}

// VocabSize is the number of entries in the vocabulary.
func (t *Tokenizer) VocabSize() int {
	return len(t.Vocab)
}

// PadID is the id of the padding token.
func (t *Tokenizer) PadID() int {
	return t.padID
}

// Encoding is one tokenized example.
type Encoding struct {
	InputIDs      []int
	AttentionMask []int
	TokenTypeIDs  []int
}

// Encode tokenizes one or two text segments into model inputs:
// [CLS] a [SEP] (b [SEP]). Truncation to maxLength is always on, trimming
// the longer segment first for pairs. When pad is set the output is padded
// to maxLength; otherwise padding is deferred to batch collation.
func (t *Tokenizer) Encode(textA, textB string, maxLength int, pad bool) Encoding {
	idsA := t.tokenize(textA)
	var idsB []int
	if textB != "" {
		idsB = t.tokenize(textB)
	}

	// Specials: [CLS], [SEP] after each segment.
	budget := maxLength - 2
	if idsB != nil {
		budget = maxLength - 3
	}
	if budget < 0 {
		budget = 0
	}
	idsA, idsB = truncatePair(idsA, idsB, budget)

	size := len(idsA) + 2 + len(idsB)
	if idsB != nil {
		size++
	}
	enc := Encoding{
		InputIDs:      make([]int, 0, size),
		AttentionMask: make([]int, 0, size),
		TokenTypeIDs:  make([]int, 0, size),
	}
	enc.append(t.clsID, 0)
	for _, id := range idsA {
		enc.append(id, 0)
	}
	enc.append(t.sepID, 0)
	if idsB != nil {
		for _, id := range idsB {
			enc.append(id, 1)
		}
		enc.append(t.sepID, 1)
	}

	if pad {
		for len(enc.InputIDs) < maxLength {
			enc.InputIDs = append(enc.InputIDs, t.padID)
			enc.AttentionMask = append(enc.AttentionMask, 0)
			enc.TokenTypeIDs = append(enc.TokenTypeIDs, 0)
		}
	}
	return enc
}

func (e *Encoding) append(id, segment int) {
	e.InputIDs = append(e.InputIDs, id)
	e.AttentionMask = append(e.AttentionMask, 1)
	e.TokenTypeIDs = append(e.TokenTypeIDs, segment)
}

// truncatePair trims the longer sequence first until the pair fits budget.
func truncatePair(a, b []int, budget int) ([]int, []int) {
	for len(a)+len(b) > budget {
		if len(a) >= len(b) && len(a) > 0 {
			a = a[:len(a)-1]
		} else if len(b) > 0 {
			b = b[:len(b)-1]
		} else {
			break
		}
	}
	return a, b
}

func (t *Tokenizer) tokenize(text string) []int {
	var ids []int
	for _, word := range basicTokenize(text, t.LowerCase) {
		ids = append(ids, t.wordpiece(word)...)
	}
	return ids
}

// wordpiece greedily matches the longest vocabulary prefix, continuing with
// "##"-prefixed subwords.
func (t *Tokenizer) wordpiece(word string) []int {
	runes := []rune(word)
	var pieces []int
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.Vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int{t.unkID}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}

func basicTokenize(text string, lower bool) []string {
	if lower {
		text = strings.ToLower(text)
	}
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}
