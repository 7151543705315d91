package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/MimeLyc/slidesage/pkg/icron"
	"github.com/MimeLyc/slidesage/pkg/log"
	"github.com/MimeLyc/slidesage/pkg/retry"
)

// Config holds all application configuration.
// Values come from defaults, then an optional YAML or JSON file, then the environment.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Default model for every agent (default: google/gemini-2.5-flash)
// - LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT, LLM_SITE_URL, LLM_APP_NAME
//
// Agent models (empty uses LLM_MODEL):
// - MODEL_AUDITOR, MODEL_ANALYST, MODEL_WRITER, MODEL_OVERVIEWER
// - MODEL_TRANSLATOR, MODEL_IMAGE_TRANSLATOR, MODEL_DESIGNER, MODEL_VIDEO_GENERATOR
// - FALLBACK_IMAGEN_MODEL: fallback designer model (optional)
//
// Processing:
// - LANGUAGES: comma separated locales, the first is the baseline (default: en)
// - LANGUAGE_CONCURRENCY, PRESENTATION_STYLE, VISUAL_STYLE, PRESENTATION_THEME
// - SKIP_VISUALS, GENERATE_VIDEOS, FORCE_FALLBACK_IMAGE_GEN
// - SPEAKER_NOTE_RETRY_ERRORS: reprocess only failed slides
// - SPEAKER_NOTE_PROGRESS_FILE: ledger path override for a single language run
//
// Output, schedule, journal and log:
// - OUTPUT_DIR, INPUT_DIR, CRON_EXPR, JOURNAL_PATH, JOURNAL_ENABLED, LOG_LEVEL, LOG_MODE, LOG_FILE
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Models     ModelsConfig     `mapstructure:"models"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Output     OutputConfig     `mapstructure:"output"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Log        LogConfig        `mapstructure:"log"`
}

// LLMConfig holds the configuration for the LLM client.
// Any OpenAI compatible provider works.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	APIURL      string  `mapstructure:"api_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Timeout     int     `mapstructure:"timeout"`
	SiteURL     string  `mapstructure:"site_url"`
	AppName     string  `mapstructure:"app_name"`
}

func (c LLMConfig) String() string {
	masked := ""
	if c.APIKey != "" {
		masked = "***"
	}
	return fmt.Sprintf("{APIURL:%s Model:%s MaxTokens:%d Temperature:%.2f Timeout:%ds APIKey:%s}",
		c.APIURL, c.Model, c.MaxTokens, c.Temperature, c.Timeout, masked)
}

type ModelsConfig struct {
	Auditor          string `mapstructure:"auditor"`
	Analyst          string `mapstructure:"analyst"`
	Writer           string `mapstructure:"writer"`
	Overviewer       string `mapstructure:"overviewer"`
	Translator       string `mapstructure:"translator"`
	ImageTranslator  string `mapstructure:"image_translator"`
	Designer         string `mapstructure:"designer"`
	FallbackDesigner string `mapstructure:"fallback_designer"`
	Video            string `mapstructure:"video"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		Multiplier:  c.Multiplier,
	}
}

type ProcessingConfig struct {
	// Languages are processed in order; the first is the baseline
	Languages             []string `mapstructure:"languages"`
	LanguageConcurrency   int      `mapstructure:"language_concurrency"`
	SpeakerStyle          string   `mapstructure:"speaker_style"`
	VisualStyle           string   `mapstructure:"visual_style"`
	Theme                 string   `mapstructure:"theme"`
	SkipVisuals           bool     `mapstructure:"skip_visuals"`
	Videos                bool     `mapstructure:"videos"`
	ForceFallbackDesigner bool     `mapstructure:"force_fallback_designer"`
	RetryErrors           bool     `mapstructure:"retry_errors"`
}

// Baseline returns the language every other language translates from
func (c ProcessingConfig) Baseline() string {
	if len(c.Languages) == 0 {
		return "en"
	}
	return c.Languages[0]
}

type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	ProgressFile string `mapstructure:"progress_file"`
}

type ScheduleConfig struct {
	CronExpr string `mapstructure:"cron_expr"`
	InputDir string `mapstructure:"input_dir"`
}

type JournalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"`
	// File switches to JSON entries appended to this path
	File string `mapstructure:"file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithLanguages(langs ...string) Option {
	return func(c *Config) {
		if langs = splitLanguages(langs); len(langs) > 0 {
			c.Processing.Languages = langs
		}
	}
}

func WithRetryErrors(retryErrors bool) Option {
	return func(c *Config) {
		c.Processing.RetryErrors = c.Processing.RetryErrors || retryErrors
	}
}

func WithInputDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.Schedule.InputDir = dir
		}
	}
}

// WithPhases enables phases on top of the configured ones
func WithPhases(skipVisuals, videos bool) Option {
	return func(c *Config) {
		c.Processing.SkipVisuals = c.Processing.SkipVisuals || skipVisuals
		c.Processing.Videos = c.Processing.Videos || videos
	}
}

func WithOutputDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.Output.Dir = dir
		}
	}
}

var envBindings = map[string][]string{
	"llm.api_key":                        {"LLM_API_KEY"},
	"llm.api_url":                        {"LLM_API_URL"},
	"llm.model":                          {"LLM_MODEL"},
	"llm.max_tokens":                     {"LLM_MAX_TOKENS"},
	"llm.temperature":                    {"LLM_TEMPERATURE"},
	"llm.timeout":                        {"LLM_TIMEOUT"},
	"llm.site_url":                       {"LLM_SITE_URL"},
	"llm.app_name":                       {"LLM_APP_NAME"},
	"models.auditor":                     {"MODEL_AUDITOR"},
	"models.analyst":                     {"MODEL_ANALYST"},
	"models.writer":                      {"MODEL_WRITER"},
	"models.overviewer":                  {"MODEL_OVERVIEWER"},
	"models.translator":                  {"MODEL_TRANSLATOR"},
	"models.image_translator":            {"MODEL_IMAGE_TRANSLATOR"},
	"models.designer":                    {"MODEL_DESIGNER"},
	"models.fallback_designer":           {"FALLBACK_IMAGEN_MODEL"},
	"models.video":                       {"MODEL_VIDEO_GENERATOR"},
	"retry.max_attempts":                 {"RETRY_MAX_ATTEMPTS"},
	"retry.base_delay":                   {"RETRY_BASE_DELAY"},
	"retry.multiplier":                   {"RETRY_MULTIPLIER"},
	"processing.languages":               {"LANGUAGES"},
	"processing.language_concurrency":    {"LANGUAGE_CONCURRENCY"},
	"processing.speaker_style":           {"PRESENTATION_STYLE"},
	"processing.visual_style":            {"VISUAL_STYLE"},
	"processing.theme":                   {"PRESENTATION_THEME"},
	"processing.skip_visuals":            {"SKIP_VISUALS"},
	"processing.videos":                  {"GENERATE_VIDEOS"},
	"processing.force_fallback_designer": {"FORCE_FALLBACK_IMAGE_GEN"},
	"processing.retry_errors":            {"SPEAKER_NOTE_RETRY_ERRORS"},
	"output.dir":                         {"OUTPUT_DIR"},
	"output.progress_file":               {"SPEAKER_NOTE_PROGRESS_FILE"},
	"schedule.cron_expr":                 {"CRON_EXPR"},
	"schedule.input_dir":                 {"INPUT_DIR"},
	"journal.enabled":                    {"JOURNAL_ENABLED"},
	"journal.path":                       {"JOURNAL_PATH"},
	"journal.retention_days":             {"JOURNAL_RETENTION_DAYS"},
	"log.level":                          {"LOG_LEVEL"},
	"log.mode":                           {"LOG_MODE"},
	"log.file":                           {"LOG_FILE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.api_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "google/gemini-2.5-flash")
	v.SetDefault("llm.max_tokens", 8000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 120)

	v.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry.base_delay", retry.DefaultBaseDelay)
	v.SetDefault("retry.multiplier", retry.DefaultMultiplier)

	v.SetDefault("processing.languages", []string{"en"})
	v.SetDefault("processing.language_concurrency", 2)
	v.SetDefault("processing.speaker_style", "Professional")
	v.SetDefault("processing.visual_style", "Professional")

	v.SetDefault("schedule.cron_expr", "0 * * * *")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "slidesage.db")
	v.SetDefault("journal.retention_days", 30)

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.mode", "dev")
}

// Load reads the optional config file at path, then the environment, then applies options
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.Processing.Languages = splitLanguages(cfg.Processing.Languages)

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("Config: llm=%s languages=%v output=%q", cfg.LLM, cfg.Processing.Languages, cfg.Output.Dir)
	return cfg, nil
}

// splitLanguages accepts both a list and a single comma separated value from the environment
func splitLanguages(in []string) []string {
	ret := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, item := range in {
		for _, lang := range strings.Split(item, ",") {
			lang = strings.TrimSpace(lang)
			if lang == "" || seen[lang] {
				continue
			}
			seen[lang] = true
			ret = append(ret, lang)
		}
	}
	return ret
}

// Validate checks if all required configuration is properly set
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if strings.TrimSpace(c.LLM.APIURL) == "" {
		return fmt.Errorf("llm.api_url is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if len(c.Processing.Languages) == 0 {
		return fmt.Errorf("at least one language is required")
	}
	for _, lang := range c.Processing.Languages {
		if _, err := language.Parse(lang); err != nil {
			return fmt.Errorf("invalid language %q: %w", lang, err)
		}
	}
	if c.Processing.LanguageConcurrency < 1 {
		return fmt.Errorf("processing.language_concurrency must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	if c.Output.ProgressFile != "" && len(c.Processing.Languages) > 1 {
		return fmt.Errorf("SPEAKER_NOTE_PROGRESS_FILE needs a single language, got %d", len(c.Processing.Languages))
	}
	if c.Schedule.CronExpr != "" {
		if err := icron.Validate(c.Schedule.CronExpr); err != nil {
			return fmt.Errorf("invalid schedule.cron_expr: %w", err)
		}
	}
	return nil
}
