package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

// ErrTextTooLong is returned when input exceeds the model input cap.
var ErrTextTooLong = errors.New("text too long")

// FallbackAnswer is returned when the model produced nothing usable.
const FallbackAnswer = "I couldn't find an answer in your saved articles."

// OpenAIClient implements Client against the OpenAI API. Summaries and
// embeddings are cached by content hash; the cache is cleared wholesale
// when it reaches capacity. Calls sharing a key are spaced out by the
// configured rate limit.
type OpenAIClient struct {
	api    openai.Client
	logger *log.Logger

	chatModel        string
	rankModel        string
	embedModel       string
	maxInputChars    int
	maxCacheSize     int
	maxURLsToRank    int
	desiredSelection int

	gate *rateGate

	mu           sync.Mutex
	summaryCache map[string]string
	embedCache   map[string][]float32
}

// NewOpenAIClient builds the production client. The API key comes from
// the OPENAI_API_KEY environment variable, which the SDK reads itself.
func NewOpenAIClient(aiCfg config.AIConfig, ingestCfg config.IngestConfig, logger *log.Logger) *OpenAIClient {
	return &OpenAIClient{
		api:              openai.NewClient(),
		logger:           logger,
		chatModel:        aiCfg.ChatModel,
		rankModel:        aiCfg.RankModel,
		embedModel:       aiCfg.EmbedModel,
		maxInputChars:    aiCfg.MaxInputChars,
		maxCacheSize:     aiCfg.MaxCacheSize,
		maxURLsToRank:    ingestCfg.MaxURLsToRank,
		desiredSelection: ingestCfg.DesiredSelection,
		gate:             newRateGate(time.Duration(aiCfg.RateLimitMS) * time.Millisecond),
		summaryCache:     map[string]string{},
		embedCache:       map[string][]float32{},
	}
}

func (c *OpenAIClient) Summarize(ctx context.Context, title, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("summarize: empty text")
	}
	if len(text) > c.maxInputChars {
		return "", fmt.Errorf("summarize: %w (%d chars, max %d)", ErrTextTooLong, len(text), c.maxInputChars)
	}

	key := contentHash(title + "\n" + text)
	c.mu.Lock()
	if cached, ok := c.summaryCache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	if len(c.summaryCache) >= c.maxCacheSize {
		c.summaryCache = map[string]string{}
	}
	c.mu.Unlock()

	c.gate.wait("summarize")

	prompt := fmt.Sprintf("Summarize this in 2-3 sentences: %s\n\n%s", title, text)
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarizeSystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(0.5),
		MaxCompletionTokens: openai.Int(150),
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarize: empty response")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.mu.Lock()
	c.summaryCache[key] = summary
	c.mu.Unlock()
	return summary, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embed: empty text")
	}
	if len(text) > c.maxInputChars {
		return nil, fmt.Errorf("embed: %w (%d chars, max %d)", ErrTextTooLong, len(text), c.maxInputChars)
	}

	key := contentHash(text)
	c.mu.Lock()
	if cached, ok := c.embedCache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	if len(c.embedCache) >= c.maxCacheSize {
		c.embedCache = map[string][]float32{}
	}
	c.mu.Unlock()

	c.gate.wait("embed")

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embed: empty embedding returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}

	c.mu.Lock()
	c.embedCache[key] = vec
	c.mu.Unlock()
	return vec, nil
}

func (c *OpenAIClient) RankURLs(ctx context.Context, entries []types.HistoryEntry) ([]string, error) {
	urlData, err := encodeRankCandidates(entries, c.maxURLsToRank)
	if err != nil {
		return nil, err
	}

	c.gate.wait("rank")

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.rankModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(rankSystemPrompt(c.desiredSelection)),
			openai.UserMessage(rankUserPrompt(urlData, c.desiredSelection)),
		},
		Temperature:         openai.Float(0.1),
		MaxCompletionTokens: openai.Int(1500),
	})
	if err != nil {
		return nil, fmt.Errorf("rank urls: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	urls := decodeRankResponse(resp.Choices[0].Message.Content)
	if urls == nil {
		c.logger.Warn("ranking response was not a JSON array; treating as no selection")
	}
	return urls, nil
}

func (c *OpenAIClient) Answer(ctx context.Context, query string, sources []types.RankedMemory) (Answer, error) {
	c.gate.wait("answer")

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(answerSystemPrompt),
			openai.UserMessage(answerUserPrompt(query, sources)),
		},
		Temperature:         openai.Float(0.7),
		MaxCompletionTokens: openai.Int(500),
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if text == "" {
		return Answer{Text: FallbackAnswer}, nil
	}

	cited := ExtractCitations(text, len(sources))
	if len(cited) == 0 {
		// An answer that cites nothing is not grounded in the sources.
		return Answer{Text: FallbackAnswer}, nil
	}
	return Answer{Text: text, SourceIndices: cited}, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
