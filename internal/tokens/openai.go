package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Chat format overhead, per OpenAI's accounting.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	tokensPerReply   = 3
	tokensPerCall    = 3
)

// TiktokenCounter counts tokens for OpenAI models with the model's BPE encoding.
type TiktokenCounter struct {
	matcher *ModelMatcher

	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewTiktokenCounter creates a counter for OpenAI model names.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		matcher: NewModelMatcher(
			[]string{"gpt-", "o1", "o3", "o4", "text-embedding"},
			nil,
		),
		codecs: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// SupportsModel returns true for OpenAI models.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return c.matcher.Matches(model)
}

func (c *TiktokenCounter) codec(model string) (tokenizer.Codec, error) {
	enc := encodingFor(model)

	c.mu.RLock()
	codec, ok := c.codecs[enc]
	c.mu.RUnlock()
	if ok {
		return codec, nil
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.codecs[enc] = codec
	c.mu.Unlock()
	return codec, nil
}

// encodingFor maps a model name to its encoding.
// o200k_base covers gpt-4o, gpt-4.1, gpt-5 and the o-series; older chat
// and embedding models use cl100k_base.
func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

func (c *TiktokenCounter) count(codec tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// CountText counts the tokens in text. Encoding failures fall back to the estimator.
func (c *TiktokenCounter) CountText(model, text string) int {
	codec, err := c.codec(model)
	if err != nil {
		return NewEstimator().CountText(model, text)
	}
	return c.count(codec, text)
}

// CountMessages counts a chat prompt including per-message framing and reply priming.
func (c *TiktokenCounter) CountMessages(model string, msgs []domain.ChatMessage) int {
	codec, err := c.codec(model)
	if err != nil {
		return NewEstimator().CountMessages(model, msgs)
	}

	total := 0
	for _, m := range msgs {
		total += tokensPerMessage + tokensPerRole
		total += c.count(codec, m.Text())
		for _, tc := range m.ToolCalls {
			total += c.count(codec, tc.FunctionName) + c.count(codec, tc.ArgumentsJSON) + tokensPerCall
		}
	}
	return total + tokensPerReply
}
