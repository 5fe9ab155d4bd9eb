package config

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/fennwick/ledgermail/internal/inference"
)

// LoadInferenceConfig loads the hosted-inference configuration. The API key
// may also come from HUGGINGFACE_API_KEY directly. An empty key is not an
// error here; callers without a key run on heuristics alone.
func LoadInferenceConfig() inference.Config {
	cfg := inference.Config{
		APIKey:            viper.GetString("inference.api_key"),
		BaseURL:           viper.GetString("inference.base_url"),
		NERModel:          viper.GetString("inference.ner_model"),
		ZeroShotModel:     viper.GetString("inference.zero_shot_model"),
		RequestsPerMinute: viper.GetInt("inference.requests_per_minute"),
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("HUGGINGFACE_API_KEY")
	}

	if v := viper.GetString("inference.cache_ttl"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = ttl
		}
	}

	return cfg
}
