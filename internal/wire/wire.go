package wire

import (
	"Sproutline/internal/api"
	"Sproutline/internal/api/config"
	"Sproutline/internal/api/handler"
	"Sproutline/internal/job"
	"Sproutline/internal/pkg/consts"
	"Sproutline/internal/pkg/cron"
	"Sproutline/internal/pkg/hub"
	mongorepo "Sproutline/internal/pkg/mongo"
	"Sproutline/internal/pkg/notify"
	"Sproutline/internal/pkg/redis"
	"Sproutline/internal/repository"
	"Sproutline/internal/repository/memory"
	"Sproutline/internal/service"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router      *gin.Engine
	Hub         *hub.Hub
	Bridge      *hub.Bridge
	ChatService service.ChatService
	Notifier    notify.Notifier
	CronMgr     *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	var convRepo repository.ConversationRepo
	var msgRepo repository.MessageRepo

	switch cfg.Storage.Driver {
	case "memory":
		convRepo = memory.NewConversationRepo()
		msgRepo = memory.NewMessageRepo()
	case "mysql", "":
		convRepo = repository.NewConversationRepo(db)
		msgRepo = mongorepo.NewMessageRepo(mongoDB)
	default:
		return nil, fmt.Errorf("未知存储驱动: %s", cfg.Storage.Driver)
	}

	// 多实例部署时经 Redis 广播扰动信号，单机直接走进程内总线
	h := hub.New()
	var bus hub.Publisher = h
	var bridge *hub.Bridge
	if cfg.Redis.Addr != "" {
		bridge = hub.NewBridge(h, redis.GetRdbClient(), consts.ChatEventChannel)
		bus = bridge
	}

	var notifier notify.Notifier
	var err error
	switch cfg.Notify.Driver {
	case "kafka":
		notifier, err = notify.NewKafkaNotifier(cfg)
		if err != nil {
			return nil, err
		}
	case "webhook":
		notifier = notify.NewWebhookNotifier(cfg.Notify)
	default:
		notifier = notify.NoopNotifier{}
	}

	useCache := cfg.Redis.Addr != ""
	chatService := service.NewChatService(convRepo, msgRepo, h, bus, notifier, useCache)

	handlers := &api.HandlersGroup{
		ChatHandler: handler.NewChatHandler(chatService),
		WSHandler:   handler.NewWsHandler(chatService),
	}
	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(
		job.NewOrphanSweepJob(convRepo, msgRepo),
		job.NewUnreadRefreshJob(chatService),
	)

	return &ApplicationContainer{
		Router:      router,
		Hub:         h,
		Bridge:      bridge,
		ChatService: chatService,
		Notifier:    notifier,
		CronMgr:     cronMgr,
	}, nil
}
