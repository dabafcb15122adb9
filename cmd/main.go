package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"spapi_partner_v1_202608/internal/controller"
	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/queue"
	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/internal/router"
	"spapi_partner_v1_202608/internal/service"
	"spapi_partner_v1_202608/internal/task"
	"spapi_partner_v1_202608/pkg/database"
	"spapi_partner_v1_202608/pkg/utils"
)

func main() {
	// 1. 初始化数据库
	db := initDatabase()

	// 2. 初始化依赖
	deps := initDependencies(db)

	// 3. 启动定时任务和消费者
	initBackground(deps)

	// 4. 初始化路由
	r := router.SetupRouter(deps.Controllers)

	// 5. 启动服务
	startServer(r, deps)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *router.Controllers
	Consumer    *queue.NotificationConsumer
	Tasks       *task.TaskManager
}

// Repositories 仓库集合
type Repositories struct {
	Partner repository.PartnerRepository
	State   repository.AuthStateRepository
	History repository.TokenHistoryRepository
}

// Services 服务集合
type Services struct {
	LWA      *service.LWAService
	AppCred  *service.AppCredService
	Status   *service.StatusService
	AuthFlow *service.AuthFlowService
	Rotation *service.RotationService
	Reminder *service.ReminderService
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase() *gorm.DB {
	dsn := getEnv("DATABASE_DSN",
		"host=localhost user=spapi password=spapi dbname=spapi_partner port=5432 sslmode=disable")
	return database.InitDB(dsn,
		&model.Partner{},
		&model.AuthState{},
		&model.TokenHistory{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB) *Dependencies {
	// -------- Repo 层 --------
	repos := &Repositories{
		Partner: repository.NewPartnerRepository(db),
		State:   repository.NewAuthStateRepository(db),
		History: repository.NewTokenHistoryRepository(db),
	}

	// -------- AWS 客户端 --------
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("加载 AWS 配置失败: %v", err)
	}
	smClient := secretsmanager.NewFromConfig(awsCfg)
	sqsClient := sqs.NewFromConfig(awsCfg)

	// -------- 基础服务 --------
	lwaSvc := service.NewLWAService(&service.LWAConfig{
		TokenURL: getEnv("LWA_TOKEN_URL", ""),
	})

	// 共享凭证缓存由组合根创建并持有
	credCache := utils.NewTTLCache(nil)
	appCredSvc := service.NewAppCredService(&service.AppCredConfig{
		SecretID: getEnv("APP_CRED_SECRET_ID", "spapi/lwa-app-credentials"),
	}, smClient, credCache)

	// -------- 业务服务 --------
	services := &Services{
		LWA:     lwaSvc,
		AppCred: appCredSvc,
	}
	services.Status = service.NewStatusService(repos.Partner, repos.History)
	services.AuthFlow = service.NewAuthFlowService(
		&service.AuthFlowConfig{
			ConsentURL:  getEnv("CONSENT_URL", ""),
			RedirectURI: getEnv("AUTH_REDIRECT_URI", "https://localhost:8080/api/auth/callback"),
			DraftApp:    getEnv("DRAFT_APP", "true") == "true",
		},
		repos.Partner, repos.State, repos.History,
		services.Status, lwaSvc, appCredSvc,
	)
	services.Rotation = service.NewRotationService(
		&service.RotationConfig{Endpoint: getEnv("ROTATION_ENDPOINT", "")},
		repos.Partner, lwaSvc,
	)
	services.Reminder = service.NewReminderService(
		&service.ReminderConfig{Endpoint: getEnv("REMINDER_ENDPOINT", "")},
		repos.Partner, repos.History, lwaSvc, appCredSvc,
	)

	// -------- 消费者 --------
	consumer := queue.NewNotificationConsumer(&queue.ConsumerConfig{
		QueueURL: getEnv("ROTATION_QUEUE_URL", ""),
	}, sqsClient, services.Rotation)

	// -------- 定时任务 --------
	tasks := task.NewTaskManager(&task.TaskManagerDeps{
		PartnerRepo: repos.Partner,
		StateRepo:   repos.State,
		HistoryRepo: repos.History,
		AuthFlow:    services.AuthFlow,
		Reminder:    services.Reminder,
		Status:      services.Status,
	}, task.DefaultConfig())

	// -------- Controller 层 --------
	controllers := &router.Controllers{
		Auth:     controller.NewAuthController(services.AuthFlow),
		Partner:  controller.NewPartnerController(repos.Partner, repos.History, services.Status),
		Rotation: controller.NewRotationController(services.Rotation),
		Task:     controller.NewTaskController(tasks),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
		Consumer:    consumer,
		Tasks:       tasks,
	}
}

// ==================== 后台组件 ====================

// initBackground 启动定时任务和 SQS 消费者
func initBackground(deps *Dependencies) {
	deps.Tasks.Start()

	if deps.Consumer.Config.QueueURL != "" {
		deps.Consumer.Start()
	} else {
		log.Println("警告: 未配置 ROTATION_QUEUE_URL，轮换通知消费者未启动")
	}

	log.Println("后台组件已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine, deps *Dependencies) {
	port := getEnv("SERVER_PORT", "8080")

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动在 :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 先停后台组件，再关 HTTP
	deps.Tasks.Stop()
	if deps.Consumer.Config.QueueURL != "" {
		deps.Consumer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
