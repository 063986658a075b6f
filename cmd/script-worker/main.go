package main

import (
	"context"
	"encoding/json"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/engine"
	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/executors"
	"github.com/Jarrydtb/scripter/internal/models"
	gorm_db "github.com/Jarrydtb/scripter/pkg/db"
	"github.com/Jarrydtb/scripter/pkg/validation"
)

const (
	DefaultKafkaBrokers  = "localhost:9092"
	DefaultDispatchTopic = "script_orchestration_requests"
	DefaultGroupID       = "script-worker-group"
)

func main() {
	stdlog.Println("Starting Script Worker Service...")

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	gormDB, err := gorm_db.NewGormDB()
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	err = gorm_db.AutoMigrate(gormDB,
		&models.Image{}, &models.ImageFile{}, &models.Script{}, &models.Job{}, &models.Schedule{})
	if err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}

	containerEngine, err := engine.NewDocker()
	if err != nil {
		stdlog.Fatalf("Failed to connect to container engine: %v", err)
	}

	executors.RegisterExecutor(events.KindBuild, executors.NewBuildExecutor(gormDB, containerEngine, cfg))
	executors.RegisterExecutor(events.KindRun, executors.NewRunExecutor(gormDB, containerEngine, cfg))

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		kafkaBrokers = DefaultKafkaBrokers
	}
	dispatchTopic := os.Getenv("DISPATCH_TOPIC")
	if dispatchTopic == "" {
		dispatchTopic = DefaultDispatchTopic
	}
	groupID := os.Getenv("GROUP_ID")
	if groupID == "" {
		groupID = DefaultGroupID
	}
	brokerList := strings.Split(kafkaBrokers, ",")
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokerList, GroupID: groupID, Topic: dispatchTopic,
		MinBytes: 10e3, MaxBytes: 10e6, CommitInterval: time.Second, MaxWait: 3 * time.Second,
	})
	defer reader.Close()
	stdlog.Printf("Script Worker Kafka consumer configured for brokers: %s, topic: %s, groupID: %s",
		kafkaBrokers, dispatchTopic, groupID)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-signals
		stdlog.Printf("Script Worker: Shutdown signal received (%s). Cancelling context...", sig)
		cancel()
	}()

	stdlog.Println("Script Worker listening for messages...")
	for {
		select {
		case <-ctx.Done():
			stdlog.Println("Script Worker: Context cancelled. Exiting message loop.")
			return
		default:
			readCtx, readLoopCancel := context.WithTimeout(ctx, 1*time.Second)
			m, err := reader.ReadMessage(readCtx)
			readLoopCancel()
			if err == context.DeadlineExceeded {
				continue
			}
			if err == context.Canceled {
				stdlog.Println("Script Worker: Read context cancelled, likely due to shutdown.")
				continue
			}
			if err == io.EOF {
				stdlog.Println("Script Worker: Kafka reader closed (EOF). Exiting.")
				return
			}
			if err != nil {
				stdlog.Printf("Script Worker: Kafka read error: %v. Retrying...", err)
				time.Sleep(1 * time.Second)
				continue
			}
			stdlog.Printf("Script Worker: Received message: Topic %s, Partition %d, Offset %d",
				m.Topic, m.Partition, m.Offset)

			if err := validation.ValidateJSONWithSchema(events.DispatchSchema, string(m.Value)); err != nil {
				stdlog.Printf("Script Worker: Dispatch validation failed: %v. Value: %s", err, string(m.Value))
				continue
			}
			var payload events.DispatchPayload
			if err := json.Unmarshal(m.Value, &payload); err != nil {
				stdlog.Printf("Script Worker: Unmarshal error for dispatch payload: %v. Value: %s", err, string(m.Value))
				continue
			}
			executor, err := executors.GetExecutor(payload.Kind)
			if err != nil {
				stdlog.Printf("Script Worker: Error getting executor for kind '%s': %v", payload.Kind, err)
				continue
			}
			go func(p events.DispatchPayload) {
				if execErr := executor.Execute(context.Background(), p); execErr != nil {
					stdlog.Printf("Script Worker: Error executing %s dispatch: %v", p.Kind, execErr)
				}
			}(payload)
		}
	}
}
