package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
	"github.com/mr-kenikh/viem/internal/observability/metrics"
	"github.com/mr-kenikh/viem/internal/submission"
)

// Server 负责暴露 REST 接口，供外部提交与查询批量调用。
type Server struct {
	addr    string
	service *submission.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *submission.Service) *Server {
	return &Server{addr: addr, service: service}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/batches", instrument("batches", s.handleBatches))
	mux.HandleFunc("/api/v1/batches/", instrument("batch_detail", s.handleBatchDetail))
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitBatch(w, r)
	case http.MethodGet:
		s.handleListBatches(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req submission.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	sub, err := s.service.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(sub)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "服务未初始化", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	subs, err := s.service.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(subs)
}

func (s *Server) handleBatchDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/batches/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "非法的批次 ID", http.StatusBadRequest)
		return
	}

	sub, err := s.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sub)
}

// writeError 按错误码映射 HTTP 状态并输出统一的错误响应体。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case submission.CodeSubmissionNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case submission.CodeSubmissionConflict, xerrors.CodeConflict:
		status = http.StatusConflict
	case submission.CodeSubmissionValidation, xerrors.CodeInvalidArgument,
		xerrors.CodeAccountMissing, xerrors.CodeChainMissing, xerrors.CodeEncodingFailure:
		status = http.StatusBadRequest
	case submission.CodeSubmissionPublish, xerrors.CodeQueueFailure:
		status = http.StatusServiceUnavailable
	case xerrors.CodeTransportFault:
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

// instrument 记录每个处理器的请求量与耗时。处理器 panic 时同样计数，
// 未写响应头的按 500 记。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				if !recorder.wroteHeader {
					recorder.status = http.StatusInternalServerError
				}
				metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
				panic(rec)
			}
			metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
		}()
		handler(recorder, r)
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
