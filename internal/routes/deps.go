package routes

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/activity"
	"github.com/zaqqye/complab_backend/internal/audit"
	"github.com/zaqqye/complab_backend/internal/config"
	"github.com/zaqqye/complab_backend/internal/directory"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/logging"
	"github.com/zaqqye/complab_backend/internal/presence"
	"github.com/zaqqye/complab_backend/internal/registry"
	"github.com/zaqqye/complab_backend/internal/unlock"
	"github.com/zaqqye/complab_backend/internal/ws"
)

// Deps is the service graph behind the HTTP surface.
type Deps struct {
	DB          *gorm.DB
	Config      *config.Config
	Log         *zap.Logger
	Hubs        *ws.Hubs
	Publisher   events.Publisher
	Registry    *registry.Registry
	Sink        *activity.Sink
	Directory   *directory.Directory
	Presence    *presence.Service
	Coordinator *unlock.Coordinator
}

// NewDeps wires services over db. now may be nil.
func NewDeps(db *gorm.DB, cfg *config.Config, log *zap.Logger, hubs *ws.Hubs, pub events.Publisher, now func() time.Time) *Deps {
	if now == nil {
		now = time.Now
	}
	reg := registry.New(db)
	sink := activity.NewSink(db, logging.Component(log, "activity"))
	dir := directory.New(db)
	return &Deps{
		DB:        db,
		Config:    cfg,
		Log:       log,
		Hubs:      hubs,
		Publisher: pub,
		Registry:  reg,
		Sink:      sink,
		Directory: dir,
		Presence:  presence.NewService(reg, sink, pub, logging.Component(log, "presence"), now),
		Coordinator: unlock.New(unlock.Deps{
			Registry:  reg,
			Directory: dir,
			Sink:      sink,
			Trail:     audit.NewTrail(),
			Publisher: pub,
			Logger:    logging.Component(log, "unlock"),
			Now:       now,
		}),
	}
}
