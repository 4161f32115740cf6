package wire

import (
	"Ripple/internal/api"
	"Ripple/internal/api/config"
	"Ripple/internal/api/handler"
	"Ripple/internal/job"
	"Ripple/internal/pkg/cron"
	"Ripple/internal/pkg/kafka"
	"Ripple/internal/pkg/mongo"
	"Ripple/internal/pkg/notify"
	"Ripple/internal/pkg/ws"
	"Ripple/internal/repository"
	"Ripple/internal/service"

	"github.com/gin-gonic/gin"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router   *gin.Engine
	DB       *gorm.DB
	Registry *ws.Registry
	Producer kafka.EventProducer
	CronMgr  *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoConn *mongoDB.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	userRepo := repository.NewUserRepo(db)
	messageRepo := mongo.NewMessageRepo(mongoConn)

	registry := ws.NewRegistry()

	producer, err := kafka.NewEventProducer(cfg)
	if err != nil {
		return nil, err
	}
	pusher := notify.NewPusher(cfg.Push)

	imService := service.NewIMService(cfg.IM, convRepo, messageRepo, userRepo, registry, producer, pusher)
	callService := service.NewCallService(registry)

	handlers := &api.HandlersGroup{
		IMHandler: handler.NewIMHandler(imService),
		WSHandler: handler.NewWsHandler(imService, callService, registry, cfg.IM),
	}

	router := api.SetupRouter(handlers)

	previewRepairJob := job.NewPreviewRepairJob(convRepo, messageRepo)
	cronMgr := cron.NewCronManager(previewRepairJob)

	return &ApplicationContainer{
		Router:   router,
		DB:       db,
		Registry: registry,
		Producer: producer,
		CronMgr:  cronMgr,
	}, nil
}
