package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config 服务配置，通过环境变量加载（可选 .env 文件）
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	DataDir    string `envconfig:"DATA_DIR" default:"data"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"license-key-engine-secret"`

	// 支付回调 HMAC 共享密钥
	PaymentWebhookSecret string `envconfig:"PAYMENT_WEBHOOK_SECRET" default:"change-me"`

	// 免费密钥领取流程
	FreeKeyBaseURL       string        `envconfig:"FREE_KEY_BASE_URL" default:"http://localhost:8080"`
	FreeKeySessionTTL    time.Duration `envconfig:"FREE_KEY_SESSION_TTL" default:"30m"`
	FreeKeyDailyPerIP    int           `envconfig:"FREE_KEY_DAILY_PER_IP" default:"3"`
	FreeKeyDailyPerUser  int           `envconfig:"FREE_KEY_DAILY_PER_USER" default:"3"`
	ShortenerEndpoint    string        `envconfig:"SHORTENER_ENDPOINT"`
	ShortenerAPIKey      string        `envconfig:"SHORTENER_API_KEY"`

	// 过期扫描周期
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"10m"`

	// 事件通知（可选，留空则只记日志）
	NotifyEndpoint string `envconfig:"NOTIFY_ENDPOINT"`

	// Google Sheets 同步（可选）
	SheetSyncEnabled    bool   `envconfig:"SHEET_SYNC_ENABLED" default:"false"`
	SheetCredentialPath string `envconfig:"SHEET_CREDENTIAL_PATH" default:"credentials.json"`
	SpreadsheetID       string `envconfig:"SPREADSHEET_ID"`
	SheetName           string `envconfig:"SHEET_NAME" default:"licenses"`
}

// Load 读取配置，.env 不存在时静默忽略
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("lke", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
