package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/observability/xmetrics"
)

// 路由
const (
	PathHandleTask   = "/handleTask"
	PathReceivedTask = "/receivedTask"
)

// 响应状态
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// DefaultMaxBodyBytes 请求体上限
const DefaultMaxBodyBytes = 1 << 20

// Response 两个接口共用的 JSON 响应
type Response struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Name      string `json:"name,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Data      *Task  `json:"data,omitempty"`
}

//go:generate mockgen -source=handler.go -destination=mock_processor_test.go -package=taskqueue

// Processor 任务的业务处理。返回错误时任务不会被标记为已处理，投递方会重试。
type Processor interface {
	Process(ctx context.Context, t Task) error
}

// ProcessorFunc 函数适配器
type ProcessorFunc func(ctx context.Context, t Task) error

// Process 实现 Processor
func (f ProcessorFunc) Process(ctx context.Context, t Task) error {
	return f(ctx, t)
}

// LogProcessor 只记录日志的默认处理器
type LogProcessor struct {
	Logger xlog.Logger
}

// Process 实现 Processor
func (p LogProcessor) Process(ctx context.Context, t Task) error {
	logger := p.Logger
	if logger == nil {
		logger = xlog.Default()
	}
	return logger.Info(ctx, fmt.Sprintf("Processing task for user %s: %s", t.Username, t.Message))
}

// HandlerOption Handler 选项
type HandlerOption func(*Handler)

// WithProcessor 业务处理器，默认 LogProcessor
func WithProcessor(p Processor) HandlerOption {
	return func(h *Handler) {
		if p != nil {
			h.processor = p
		}
	}
}

// WithRetryPolicy 新建信封使用的投递重试策略
func WithRetryPolicy(p RetryPolicy) HandlerOption {
	return func(h *Handler) {
		h.policy = p
	}
}

// WithHandlerLogger 日志
func WithHandlerLogger(l xlog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithLocker 接收处理使用的锁，默认 LocalLocker
func WithLocker(l Locker) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.locker = l
		}
	}
}

// WithHandlerObserver 记录入队与处理的次数和耗时
func WithHandlerObserver(o xmetrics.Observer) HandlerOption {
	return func(h *Handler) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithMaxBodyBytes 请求体上限，非正值忽略
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// Handler 任务接口的 HTTP 处理器
type Handler struct {
	queue     Queue
	store     Store
	locker    Locker
	observer  xmetrics.Observer
	processor Processor
	policy    RetryPolicy
	logger    xlog.Logger
	maxBody   int64
}

// NewHandler 创建 Handler
func NewHandler(queue Queue, store Store, opts ...HandlerOption) (*Handler, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if store == nil {
		return nil, ErrNilStore
	}
	h := &Handler{
		queue:    queue,
		store:    store,
		policy:   DefaultRetryPolicy(),
		logger:   xlog.Default(),
		observer: xmetrics.NoopObserver{},
		maxBody:  DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.processor == nil {
		h.processor = LogProcessor{Logger: h.logger}
	}
	if h.locker == nil {
		h.locker = NewLocalLocker()
	}
	return h, nil
}

// Register 在 mux 上注册 POST 路由，其他方法由 mux 返回 405
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodPost+" "+PathHandleTask, h.HandleTask)
	mux.HandleFunc(http.MethodPost+" "+PathReceivedTask, h.ReceivedTask)
}

// HandleTask 校验任务并入队
func (h *Handler) HandleTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, ok := h.decode(w, r)
	if !ok {
		return
	}

	env := NewEnvelope(ctx, t, h.policy)
	_ = h.logger.Info(ctx, "Sending task",
		xlog.Payload(xlog.Fields{"name": env.Name, "url": env.URL}))

	obs := h.observer.Start(ctx, xmetrics.Options{Component: "taskqueue", Operation: "enqueue"})
	err := h.queue.Enqueue(ctx, env)
	obs.End(xmetrics.Result{Err: err})
	if err != nil {
		if errors.Is(err, ErrDuplicateTask) {
			_ = h.logger.Warn(ctx, "task already enqueued", xlog.Err(err))
			h.write(ctx, w, http.StatusConflict, Response{Status: StatusError, Message: "task already enqueued", Name: env.Name})
			return
		}
		_ = h.logger.Error(ctx, "enqueue task", xlog.Err(err))
		h.write(ctx, w, http.StatusInternalServerError, Response{Status: StatusError, Message: "failed to enqueue task"})
		return
	}

	_ = h.logger.Info(ctx, "task enqueued", xlog.Payload(xlog.Fields{"name": env.Name}))
	h.write(ctx, w, http.StatusOK, Response{Status: StatusOK, Message: "task enqueued", Name: env.Name})
}

// ReceivedTask 接收投递的任务：加锁后幂等检查、处理、标记。
func (h *Handler) ReceivedTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, ok := h.decode(w, r)
	if !ok {
		return
	}
	key := t.Name()

	unlock, err := h.locker.Lock(ctx, key)
	if err != nil {
		_ = h.logger.Error(ctx, "lock task", xlog.Err(err))
		h.write(ctx, w, http.StatusInternalServerError, Response{Status: StatusError, Message: "Failed to process task, will retry"})
		return
	}
	defer unlock()

	done, err := h.store.Processed(ctx, key)
	if err != nil {
		_ = h.logger.Error(ctx, "check task state", xlog.Err(err))
		h.write(ctx, w, http.StatusInternalServerError, Response{Status: StatusError, Message: "Failed to process task, will retry"})
		return
	}
	if done {
		h.observer.Start(ctx, xmetrics.Options{Component: "taskqueue", Operation: "process"}).
			End(xmetrics.Result{Attrs: []xmetrics.Attr{xmetrics.Bool("duplicate", true)}})
		_ = h.logger.Info(ctx, fmt.Sprintf("Task %s already processed, skipping...", key))
		h.write(ctx, w, http.StatusOK, Response{Status: StatusOK, Message: "Task already processed (duplicate)", Duplicate: true})
		return
	}

	_ = h.logger.Info(ctx, "Received task", xlog.Payload(xlog.Fields{
		"id": t.ID, "username": t.Username, "url": t.URL,
	}))

	obs := h.observer.Start(ctx, xmetrics.Options{Component: "taskqueue", Operation: "process"})
	err = h.processor.Process(ctx, t)
	obs.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Bool("duplicate", false)}})
	if err != nil {
		_ = h.logger.Error(ctx, "Error processing task", xlog.Err(err))
		h.write(ctx, w, http.StatusInternalServerError, Response{Status: StatusError, Message: "Failed to process task, will retry"})
		return
	}

	// 处理已成功：标记失败只记录，不让投递方重试导致重复处理
	marked, err := h.store.MarkProcessed(ctx, key)
	switch {
	case err != nil:
		_ = h.logger.Warn(ctx, "mark task processed", xlog.Err(err))
	case !marked:
		_ = h.logger.Warn(ctx, fmt.Sprintf("Task %s was processed concurrently", key))
	}

	h.write(ctx, w, http.StatusOK, Response{
		Status:  StatusOK,
		Message: "Successfully processed task for user " + t.Username,
		Data:    &t,
	})
}

// decode 解析并校验请求体，失败时已写出 400
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Task, bool) {
	var t Task
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := sonic.ConfigDefault.NewDecoder(body).Decode(&t); err != nil {
		_ = h.logger.Warn(r.Context(), "decode task", xlog.Err(err))
		h.write(r.Context(), w, http.StatusBadRequest, Response{Status: StatusError, Message: "invalid request body: " + err.Error()})
		return Task{}, false
	}
	if err := t.Validate(); err != nil {
		_ = h.logger.Warn(r.Context(), "invalid task", xlog.Err(err))
		h.write(r.Context(), w, http.StatusBadRequest, Response{Status: StatusError, Message: err.Error()})
		return Task{}, false
	}
	return t, true
}

func (h *Handler) write(ctx context.Context, w http.ResponseWriter, code int, resp Response) {
	data, err := sonic.Marshal(resp)
	if err != nil {
		_ = h.logger.Error(ctx, "encode response", xlog.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(data, '\n'))
}
