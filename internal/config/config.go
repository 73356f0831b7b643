package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultQuestionLimit is the number of questions asked per interview
	DefaultQuestionLimit = 3
	// DefaultInterviewDurationMinutes is the wall-clock budget of an interview
	DefaultInterviewDurationMinutes = 45
	// DefaultPromoteThreshold is the average score at or above which a candidate is promoted
	DefaultPromoteThreshold = 6.0
	// DefaultMonitorIntervalSeconds is the pause between proctoring samples
	DefaultMonitorIntervalSeconds = 3
	// DefaultScoreRetries is how many times a failed scoring call is retried
	DefaultScoreRetries = 1
)

// Config holds application configuration
type Config struct {
	GoogleCloudProject    string `json:"google_cloud_project"`
	GoogleCloudLocation   string `json:"google_cloud_location"`
	GoogleCredentialsPath string `json:"google_credentials_path"`
	GmailCredentialsPath  string `json:"gmail_credentials_path"`
	GmailTokenPath        string `json:"gmail_token_path"`

	LLMProvider  string `json:"llm_provider"`
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`
	Model        string `json:"model"`

	DataDir       string `json:"data_dir"`
	UploadsDir    string `json:"uploads_dir"`
	CheckpointDir string `json:"checkpoint_dir"`
	ReportsDir    string `json:"reports_dir"`
	SnapshotDir   string `json:"snapshot_dir"`

	QuestionLimit            int      `json:"question_limit"`
	InterviewDurationMinutes int      `json:"interview_duration_minutes"`
	PromoteThreshold         float64  `json:"promote_threshold"`
	ScoreRetries             int      `json:"score_retries"`
	MonitorIntervalSeconds   int      `json:"monitor_interval_seconds"`
	CameraCommand            []string `json:"camera_command"`

	DatabaseDriver string   `json:"database_driver"`
	DatabaseDSN    string   `json:"database_dsn"`
	RedisAddr      string   `json:"redis_addr"`
	RabbitMQURL    string   `json:"rabbitmq_url"`
	SweepSchedule  string   `json:"sweep_schedule"`
	ListenAddr     string   `json:"listen_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		GoogleCloudLocation:      "us-central1",
		LLMProvider:              "vertexai",
		Model:                    "gemini-1.5-flash",
		DataDir:                  "data",
		QuestionLimit:            DefaultQuestionLimit,
		InterviewDurationMinutes: DefaultInterviewDurationMinutes,
		PromoteThreshold:         DefaultPromoteThreshold,
		ScoreRetries:             DefaultScoreRetries,
		MonitorIntervalSeconds:   DefaultMonitorIntervalSeconds,
		CameraCommand:            []string{"ffmpeg", "-loglevel", "error", "-f", "v4l2", "-i", "/dev/video0", "-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-"},
		SweepSchedule:            "@every 30s",
		ListenAddr:               ":8080",
		AllowedOrigins:           []string{"http://localhost:5173"},
	}
}

// GetConfigPath returns the path to the configuration file
// On Windows: %APPDATA%/AIInterviewer/config.json
// On Unix: ~/.config/AIInterviewer/config.json
func GetConfigPath() (string, error) {
	var configDir string

	if os.Getenv("APPDATA") != "" {
		configDir = filepath.Join(os.Getenv("APPDATA"), "AIInterviewer")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "AIInterviewer")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load loads configuration from the default config path, a .env file if present,
// and environment overrides
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path
func LoadFrom(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.ApplyEnvOverrides()
	config.resolveDirs()
	return config, nil
}

// Save saves the configuration to the default config path
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to a specific path
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "vertexai":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("google_cloud_project is required for the vertexai provider")
		}
		if c.GoogleCloudLocation == "" {
			return fmt.Errorf("google_cloud_location is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unsupported llm_provider: %q", c.LLMProvider)
	}

	if c.QuestionLimit <= 0 {
		return fmt.Errorf("question_limit must be positive")
	}
	if c.InterviewDurationMinutes <= 0 {
		return fmt.Errorf("interview_duration_minutes must be positive")
	}
	if c.MonitorIntervalSeconds <= 0 {
		return fmt.Errorf("monitor_interval_seconds must be positive")
	}
	if c.ScoreRetries < 0 {
		return fmt.Errorf("score_retries must not be negative")
	}

	if c.GoogleCredentialsPath != "" {
		if _, err := os.Stat(c.GoogleCredentialsPath); err != nil {
			return fmt.Errorf("google credentials file not found: %w", err)
		}
	}

	if c.GmailCredentialsPath != "" {
		if _, err := os.Stat(c.GmailCredentialsPath); err != nil {
			return fmt.Errorf("gmail credentials file not found: %w", err)
		}
	}

	return nil
}

// ApplyToEnv applies configuration values to environment variables
func (c *Config) ApplyToEnv() {
	if c.GoogleCloudProject != "" {
		os.Setenv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	}
	if c.GoogleCloudLocation != "" {
		os.Setenv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	}
	if c.GoogleCredentialsPath != "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsPath)
	}
}

// ApplyEnvOverrides overlays values found in the environment
func (c *Config) ApplyEnvOverrides() {
	c.GoogleCloudProject = getEnv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	c.GoogleCloudLocation = getEnv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	c.GoogleCredentialsPath = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsPath)
	c.LLMProvider = getEnv("LLM_PROVIDER", c.LLMProvider)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.Model = getEnv("LLM_MODEL", c.Model)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.QuestionLimit = getEnvInt("QUESTION_LIMIT", c.QuestionLimit)
	c.InterviewDurationMinutes = getEnvInt("INTERVIEW_DURATION_MINUTES", c.InterviewDurationMinutes)
	c.PromoteThreshold = getEnvFloat("PROMOTE_THRESHOLD", c.PromoteThreshold)
	c.ScoreRetries = getEnvInt("SCORE_RETRIES", c.ScoreRetries)
	c.MonitorIntervalSeconds = getEnvInt("MONITOR_INTERVAL_SECONDS", c.MonitorIntervalSeconds)
	if cmd := os.Getenv("CAMERA_COMMAND"); cmd != "" {
		c.CameraCommand = strings.Fields(cmd)
	}
	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RabbitMQURL = getEnv("RABBITMQ_URL", c.RabbitMQURL)
	c.SweepSchedule = getEnv("SWEEP_SCHEDULE", c.SweepSchedule)
	if port := os.Getenv("PORT"); port != "" {
		c.ListenAddr = ":" + port
	}
}

// resolveDirs fills unset artifact directories beneath DataDir
func (c *Config) resolveDirs() {
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.CheckpointDir == "" {
		c.CheckpointDir = filepath.Join(c.DataDir, "checkpoints")
	}
	if c.ReportsDir == "" {
		c.ReportsDir = filepath.Join(c.DataDir, "reports")
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = filepath.Join(c.DataDir, "face_snapshots")
	}
}

// InterviewDuration returns the interview budget as a duration
func (c *Config) InterviewDuration() time.Duration {
	return time.Duration(c.InterviewDurationMinutes) * time.Minute
}

// MonitorInterval returns the proctoring cadence as a duration
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSeconds) * time.Second
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
