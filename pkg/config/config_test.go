package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "gpt-oss:20b", cfg.LLM.Model)
	assert.Equal(t, "gpt-oss:20b", cfg.LLM.AnalysisModel, "analysis model falls back to the chat model")
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 400, cfg.RAG.ChunkWords)
	assert.Equal(t, 500, cfg.RAG.WordsPerPage)
	assert.Equal(t, 1400, cfg.RAG.ChunkMaxChars)
	assert.Equal(t, 10000, cfg.RAG.ContextMaxChars)
	assert.Equal(t, GatePolicyIntent, cfg.RAG.GatePolicy)
	assert.Equal(t, int64(20*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, 4000, cfg.Chat.MaxContentChars)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("OLLAMA_HOST", "http://ollama:11434/")
	v.Set("OLLAMA_FALLBACK_ORDER", " llama3 , ,mistral ")
	v.Set("RAG_ANALYSIS_MODEL", "qwen2")
	v.Set("OLLAMA_TIMEOUT", "not-a-duration")
	v.Set("RAG_GATE_POLICY", "CLASSIFY")

	cfg := fromViper(v)

	assert.Equal(t, "http://ollama:11434", cfg.LLM.Host)
	assert.Equal(t, []string{"llama3", "mistral"}, cfg.LLM.FallbackModels)
	assert.Equal(t, "qwen2", cfg.LLM.AnalysisModel)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, GatePolicyClassify, cfg.RAG.GatePolicy)
}
