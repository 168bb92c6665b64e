package cron

import (
	"Sproutline/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine           *cron.Cron
	orphanSweepJob   *job.OrphanSweepJob
	unreadRefreshJob *job.UnreadRefreshJob
}

func NewCronManager(orphanSweepJob *job.OrphanSweepJob, unreadRefreshJob *job.UnreadRefreshJob) *Manager {
	return &Manager{
		engine:           cron.New(cron.WithSeconds()),
		orphanSweepJob:   orphanSweepJob,
		unreadRefreshJob: unreadRefreshJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob("@every 10m", s.orphanSweepJob); err != nil {
		return err
	}
	if _, err := s.engine.AddJob("@every 30s", s.unreadRefreshJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	s.engine.Stop()
}
