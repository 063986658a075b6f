package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"github.com/Jarrydtb/scripter/internal/api"
	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/engine"
	scripterKafka "github.com/Jarrydtb/scripter/internal/kafka"
	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/internal/services"
	gorm_db "github.com/Jarrydtb/scripter/pkg/db"
)

func main() {
	stdlog.Println("Script Manager Service starting...")

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	gormDB, err := gorm_db.NewGormDB()
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	stdlog.Println("Database initialized successfully.")

	stdlog.Println("Running database migrations...")
	err = gorm_db.AutoMigrate(gormDB,
		&models.Image{}, &models.ImageFile{}, &models.Script{}, &models.Job{}, &models.Schedule{})
	if err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}
	stdlog.Println("Database migration successful.")

	kafkaProducer := scripterKafka.NewDispatchProducer()

	containerEngine, err := engine.NewDocker()
	if err != nil {
		stdlog.Fatalf("Failed to connect to container engine: %v", err)
	}

	schedulerService, err := services.NewSchedulerService(gormDB, kafkaProducer)
	if err != nil {
		stdlog.Fatalf("Failed to create scheduler service: %v", err)
	}
	if err := schedulerService.Start(); err != nil {
		stdlog.Fatalf("Failed to start scheduler service: %v", err)
	}

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(serverAddr), server.WithExitWaitTime(5*time.Second))

	imageHandler := api.NewImageHandler(services.NewImageService(gormDB, kafkaProducer, containerEngine, cfg))
	scriptHandler := api.NewScriptHandler(services.NewScriptService(gormDB, cfg))
	jobHandler := api.NewJobHandler(services.NewJobService(gormDB, kafkaProducer, containerEngine, cfg))
	scheduleHandler := api.NewScheduleHandler(services.NewScheduleService(gormDB))

	imageGroup := h.Group("/images")
	{
		imageGroup.POST("", imageHandler.CreateImage)
		imageGroup.GET("", imageHandler.GetImages)
		imageGroup.GET("/:id", imageHandler.GetImageByID)
		imageGroup.GET("/:id/files", imageHandler.GetImageFiles)
		imageGroup.PUT("/:id", imageHandler.UpdateImage)
		imageGroup.POST("/:id/build", imageHandler.BuildImage)
		imageGroup.GET("/:id/build/logs", imageHandler.GetBuildLogs)
		imageGroup.POST("/:id/destroy", imageHandler.DestroyImage)
		imageGroup.DELETE("/:id", imageHandler.DeleteImage)
	}
	scriptGroup := h.Group("/scripts")
	{
		scriptGroup.POST("", scriptHandler.CreateScript)
		scriptGroup.GET("", scriptHandler.GetScripts)
		scriptGroup.GET("/languages", scriptHandler.GetLanguages)
		scriptGroup.GET("/:id", scriptHandler.GetScriptByID)
		scriptGroup.PUT("/:id", scriptHandler.UpdateScript)
		scriptGroup.GET("/:id/code", scriptHandler.GetScriptCode)
		scriptGroup.PUT("/:id/code", scriptHandler.UpdateScriptCode)
		scriptGroup.DELETE("/:id", scriptHandler.DeleteScript)
		scriptGroup.POST("/:id/run", jobHandler.RunScript)
		scriptGroup.GET("/:id/jobs", jobHandler.GetScriptJobs)
	}
	jobGroup := h.Group("/jobs")
	{
		jobGroup.GET("/:id", jobHandler.GetJobByID)
		jobGroup.POST("/:id/cancel", jobHandler.CancelJob)
		jobGroup.GET("/:id/logs", jobHandler.GetJobLogs)
		jobGroup.DELETE("/:id", jobHandler.DeleteJob)
	}
	scheduleGroup := h.Group("/schedules")
	{
		scheduleGroup.POST("", scheduleHandler.CreateSchedule)
		scheduleGroup.GET("", scheduleHandler.GetSchedules)
		scheduleGroup.GET("/:id", scheduleHandler.GetScheduleByID)
		scheduleGroup.PUT("/:id", scheduleHandler.UpdateSchedule)
		scheduleGroup.DELETE("/:id", scheduleHandler.DeleteSchedule)
	}

	h.GET("/ping", func(c context.Context, ctxReq *app.RequestContext) {
		ctxReq.JSON(http.StatusOK, utils.H{"message": "pong"})
	})

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		if err := schedulerService.Stop(); err != nil {
			hlog.Errorf("Scheduler stop error: %v", err)
		}

		if err := kafkaProducer.Close(); err != nil {
			hlog.Errorf("Kafka producer close error: %v", err)
		} else {
			hlog.Info("Kafka producer closed.")
		}
		hlog.Info("Script Manager gracefully shut down.")
	}()

	hlog.Infof("Script Manager Service fully initialized and starting Hertz server on %s...", serverAddr)
	h.Spin()

	stdlog.Println("Script Manager Service has been shut down.")
}
