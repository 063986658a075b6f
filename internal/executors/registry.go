package executors

import (
	"context"
	"fmt"
	"log"

	"github.com/Jarrydtb/scripter/internal/events"
)

type Executor interface {
	Execute(ctx context.Context, payload events.DispatchPayload) error
}

var Registry = make(map[string]Executor)

func RegisterExecutor(kind string, executor Executor) {
	log.Printf("Registering executor for kind: %s", kind)
	Registry[kind] = executor
}

func GetExecutor(kind string) (Executor, error) {
	executor, exists := Registry[kind]
	if !exists {
		return nil, fmt.Errorf("no executor registered for kind: %s", kind)
	}
	return executor, nil
}
