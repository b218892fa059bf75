package fetch

import "time"

// Path 出站路径
type Path string

const (
	PathDirect Path = "direct"
	PathRelay  Path = "relay"
)

// ProbeState 连通性探测状态
type ProbeState string

const (
	ProbeUnknown    ProbeState = "unknown"
	ProbeProbing    ProbeState = "probing"
	ProbeDirectOnly ProbeState = "direct_only"
	ProbeRelayOnly  ProbeState = "relay_only"
	ProbeBoth       ProbeState = "both"
	ProbeNeither    ProbeState = "neither"
)

// Preference 路径选择偏好
type Preference struct {
	RelayEnabled bool `json:"relayEnabled"`
	ForceRelay   bool `json:"forceRelay"`
	AutoDetect   bool `json:"autoDetect"`
}

// Connectivity 一次连通性探测的结果
type Connectivity struct {
	State           ProbeState `json:"state"`
	Direct          bool       `json:"direct"`
	Relay           bool       `json:"relay"`
	Recommended     Path       `json:"recommended"`
	DirectLatencyMs int64      `json:"directLatency"`
	RelayLatencyMs  int64      `json:"relayLatency"`
	CheckedAt       time.Time  `json:"checkedAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	Cached          bool       `json:"cached"`
}

// Expired 结果是否已过期
func (c Connectivity) Expired(now time.Time) bool {
	return c.ExpiresAt.IsZero() || !now.Before(c.ExpiresAt)
}

func stateOf(direct, relay bool) ProbeState {
	switch {
	case direct && relay:
		return ProbeBoth
	case direct:
		return ProbeDirectOnly
	case relay:
		return ProbeRelayOnly
	default:
		return ProbeNeither
	}
}

// recommend 可达的路径优先，都可达或都不可达时直连
func recommend(direct, relay bool) Path {
	if relay && !direct {
		return PathRelay
	}
	return PathDirect
}

// SelectPath 根据偏好和探测结果选择出站路径
func SelectPath(pref Preference, c Connectivity) Path {
	switch {
	case !pref.RelayEnabled:
		return PathDirect
	case pref.ForceRelay:
		return PathRelay
	case !pref.AutoDetect:
		return PathDirect
	default:
		return recommend(c.Direct, c.Relay)
	}
}
