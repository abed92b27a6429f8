package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"schoolchat/internal/domain/service"
	"schoolchat/pkg/logger"
)

const (
	TaskMessageNotify = "chat:message:notify"
	notifyQueue       = "chat"
)

// AsynqDispatcher hands message notices to a worker over Redis.
type AsynqDispatcher struct {
	client *asynq.Client
}

var _ service.NotificationDispatcher = (*AsynqDispatcher)(nil)

func NewAsynqDispatcher(redisURL string) (*AsynqDispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return &AsynqDispatcher{client: asynq.NewClient(opt)}, nil
}

func NewMessageNoticeTask(notice *service.MessageNotice) (*asynq.Task, error) {
	payload, err := json.Marshal(notice)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMessageNotify, payload), nil
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, notice *service.MessageNotice) error {
	task, err := NewMessageNoticeTask(notice)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(notifyQueue), asynq.MaxRetry(5))
	if err != nil {
		return fmt.Errorf("asynq: enqueue %s: %w", TaskMessageNotify, err)
	}
	logger.Debug("Enqueued %s task %s for message %s", TaskMessageNotify, info.ID, notice.MessageID)
	return nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// NoticeHandler persists the notifications for one notice.
type NoticeHandler func(ctx context.Context, notice *service.MessageNotice) error

// Worker consumes message notices.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisURL string, concurrency int, handle NoticeHandler) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 10
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{notifyQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("asynq task %s failed: %v", task.Type(), err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskMessageNotify, HandleNoticeTask(handle))
	return &Worker{server: srv, mux: mux}, nil
}

// HandleNoticeTask decodes the task payload and calls handle. A payload that
// cannot be decoded is not retried.
func HandleNoticeTask(handle NoticeHandler) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var notice service.MessageNotice
		if err := json.Unmarshal(t.Payload(), &notice); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		return handle(ctx, &notice)
	}
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
