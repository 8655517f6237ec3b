package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "COCREATE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.request_timeout", typ: kString, env: "COCREATE_SERVER_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Server.RequestTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.RequestTimeout },
	},
	{
		key: "llm.base_url", typ: kString, env: "COCREATE_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "COCREATE_ANTHROPIC_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.fast_model", typ: kString, env: "COCREATE_LLM_FAST_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.FastModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.FastModel },
	},
	{
		key: "llm.draft_model", typ: kString, env: "COCREATE_LLM_DRAFT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.DraftModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.DraftModel },
	},
	{
		key: "llm.review_model", typ: kString, env: "COCREATE_LLM_REVIEW_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ReviewModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ReviewModel },
	},
	{
		key: "llm.analysis_model", typ: kString, env: "COCREATE_LLM_ANALYSIS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.AnalysisModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.AnalysisModel },
	},
	{
		key: "llm.max_retries", typ: kInt, env: "COCREATE_LLM_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxRetries },
	},
	{
		key: "generation.stage_timeout", typ: kString, env: "COCREATE_GENERATION_STAGE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generation.StageTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.StageTimeout },
	},
	{
		key: "generation.sufficiency_timeout", typ: kString, env: "COCREATE_GENERATION_SUFFICIENCY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generation.SufficiencyTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.SufficiencyTimeout },
	},
	{
		key: "generation.cautious_content_types", typ: kString, env: "COCREATE_GENERATION_CAUTIOUS_CONTENT_TYPES",
		apply:   func(cfg *Config, v any) { cfg.Generation.CautiousContentTypes = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.CautiousContentTypes },
	},
	{
		key: "generation.prompt_dir", typ: kString, env: "COCREATE_GENERATION_PROMPT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Generation.PromptDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.PromptDir },
	},
	{
		key: "storage.data_dir", typ: kString, env: "COCREATE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "COCREATE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "metrics.enabled", typ: kBool, env: "COCREATE_METRICS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Metrics.Enabled },
	},
	{
		key: "client.user_id", typ: kString, env: "COCREATE_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Client.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.UserID },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
