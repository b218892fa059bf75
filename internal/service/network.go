package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/fetch"
)

// ConnectivityProber 连通性探测
type ConnectivityProber interface {
	Check(ctx context.Context, force bool) fetch.Connectivity
	State() fetch.ProbeState
}

// ConnectivityRecorder 记录连通性指标
type ConnectivityRecorder interface {
	UpdateConnectivity(c fetch.Connectivity)
}

// NetworkStatus 网络状态
type NetworkStatus struct {
	Preference    fetch.Preference   `json:"preference"`
	Connectivity  fetch.Connectivity `json:"connectivity"`
	ActivePath    fetch.Path         `json:"activePath"`
	RelayEndpoint string             `json:"relayEndpoint,omitempty"`
}

// NetworkService 出站网络状态
type NetworkService struct {
	prober   ConnectivityProber
	pref     fetch.Preference
	relayURL string
	recorder ConnectivityRecorder
	logger   *zap.Logger
}

// NewNetworkService 创建网络状态服务，recorder 可为 nil
func NewNetworkService(prober ConnectivityProber, pref fetch.Preference, relayURL string, recorder ConnectivityRecorder, logger *zap.Logger) *NetworkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkService{
		prober:   prober,
		pref:     pref,
		relayURL: relayURL,
		recorder: recorder,
		logger:   logger,
	}
}

// Status 返回连通性结果，refresh 为 true 时强制重新探测
func (s *NetworkService) Status(ctx context.Context, refresh bool) NetworkStatus {
	conn := s.prober.Check(ctx, refresh)
	if s.recorder != nil && !conn.Cached {
		s.recorder.UpdateConnectivity(conn)
	}

	status := NetworkStatus{
		Preference:   s.pref,
		Connectivity: conn,
		ActivePath:   fetch.SelectPath(s.pref, conn),
	}
	if s.pref.RelayEnabled {
		status.RelayEndpoint = s.relayURL
	}
	return status
}

// State 当前探测状态
func (s *NetworkService) State() fetch.ProbeState {
	return s.prober.State()
}

// RunProbes 定期强制探测，刷新缓存和指标，直到 ctx 结束
func (s *NetworkService) RunProbes(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			conn := s.Status(probeCtx, true).Connectivity
			cancel()
			s.logger.Debug("Periodic connectivity probe", zap.String("state", string(conn.State)))
		}
	}
}
