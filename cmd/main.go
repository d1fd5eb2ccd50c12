package main

import (
	"os"

	"license-key-engine/internal/config"
	"license-key-engine/internal/database"
	"license-key-engine/internal/handler"
	"license-key-engine/internal/middleware"
	"license-key-engine/internal/service"
	"license-key-engine/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	util.SetJWTSecret(cfg.JWTSecret)

	// 初始化数据库
	database.InitDB(cfg.DataDir)

	// 装配服务层和外部协作方
	service.Init(cfg, log)
	if err := service.InitSheetSync(cfg.SheetSyncEnabled, cfg.SheetCredentialPath, cfg.SpreadsheetID, cfg.SheetName); err != nil {
		log.Warn().Err(err).Msg("台账同步初始化失败，已禁用")
	}

	// 周期过期扫描
	stopSweep := service.StartExpirySweep(cfg.ExpirySweepInterval)
	defer close(stopSweep)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// 未处理异常不泄露内部细节
			log.Error().Err(err).Str("path", c.Path()).Msg("请求处理异常")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "INTERNAL_ERROR",
				"message": "服务器内部错误",
			})
		},
	})

	// 中间件
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// 路由组
	api := app.Group("/api/v1")
	// 认证路由
	auth := api.Group("/auth")
	auth.Post("/validate-token", handler.HandleValidateToken)

	// 需要认证的路由
	authProtected := auth.Group("/")
	authProtected.Use(middleware.Auth())
	authProtected.Post("/change-password", handler.HandleChangePassword)

	// 用户路由
	users := api.Group("/users")
	users.Post("/register", handler.HandleUserRegister)
	users.Post("/login", handler.HandleUserLogin)
	users.Get("/info", middleware.Auth(), handler.HandleUserInfo)
	users.Get("/login-logs", middleware.Auth(), handler.HandleGetLoginLogs)

	// 许可证路由
	licenses := api.Group("/licenses")
	licenses.Post("/activate", handler.HandleLicenseActivate)
	licenses.Post("/deactivate", handler.HandleDeviceDeactivate)
	licenses.Get("/validate", handler.HandleLicenseValidate)
	licenses.Get("/usage", handler.HandleKeyUsage)
	licenses.Get("/:key", handler.HandleGetLicense)

	// 免费密钥领取
	freekey := api.Group("/freekey")
	freekey.Post("/generate", handler.HandleFreeKeyGenerate)
	freekey.Get("/callback", handler.HandleFreeKeyCallback)
	freekey.Post("/claim", handler.HandleFreeKeyClaim)

	// 订单与支付回调
	orders := api.Group("/orders")
	orders.Post("/", middleware.Auth(), handler.HandleCreateOrder)
	api.Post("/webhook/payment", handler.HandlePaymentWebhook)

	// 经销商 API（rsk_ 凭证认证）
	reseller := api.Group("/reseller")
	reseller.Post("/register", middleware.Auth(), handler.HandleResellerRegister)
	resellerAPI := reseller.Group("/", middleware.ResellerAuth())
	resellerAPI.Post("/purchase", handler.HandleResellerPurchase)
	resellerAPI.Get("/balance", handler.HandleResellerBalance)
	resellerAPI.Get("/quota", handler.HandleResellerQuota)
	resellerAPI.Post("/free-key", handler.HandleResellerFreeKey)
	resellerAPI.Get("/transactions", handler.HandleResellerTransactions)

	// 管理员路由
	admin := api.Group("/admin", middleware.Auth(), middleware.AdminOnly())
	admin.Get("/licenses", handler.HandleGetAllLicenses)
	admin.Post("/licenses/issue", handler.HandleLicenseIssue)
	admin.Put("/licenses/:key/disable", handler.HandleLicenseDisable)
	admin.Put("/licenses/:key/enable", handler.HandleLicenseEnable)
	admin.Post("/plans", handler.HandleCreatePlan)
	admin.Get("/plans", handler.HandleListPlans)
	admin.Post("/products", handler.HandleCreateProduct)
	admin.Put("/resellers/:id/status", handler.HandleResellerApprove)
	admin.Post("/resellers/:id/deposit", handler.HandleResellerDeposit)
	admin.Post("/resellers/:id/api-keys", handler.HandleCreateResellerApiKey)
	admin.Get("/logs", handler.HandleGetLogs)
	admin.Get("/logs/mine", handler.HandleGetUserLogs)

	log.Info().Str("addr", cfg.ListenAddr).Msg("服务启动")
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("服务退出")
	}
}
