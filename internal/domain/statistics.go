package domain

// BatchStatistics 批量检测统计
//
// 每次都从结果列表完整重新计算，满足
// Completed = Valid + Invalid + Errors + RateLimited + FormatErrors + Unknown。
type BatchStatistics struct {
	Total               int     `json:"total"`
	Completed           int     `json:"completed"`
	Valid               int     `json:"valid"`
	Invalid             int     `json:"invalid"` // 含已过期
	Errors              int     `json:"errors"`
	RateLimited         int     `json:"rateLimited"` // 含配额超限
	FormatErrors        int     `json:"formatErrors"`
	Unknown             int     `json:"unknown"`
	Progress            float64 `json:"progress"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	SuccessRate         float64 `json:"successRate"`
}

// ComputeStatistics 根据已完成的条目计算统计信息
func ComputeStatistics(total int, completed []WorkItem) BatchStatistics {
	stats := BatchStatistics{Total: total}

	var totalTime int64
	for i := range completed {
		item := &completed[i]
		if !item.Status.IsTerminal() {
			continue
		}
		stats.Completed++
		totalTime += item.CheckTimeMs

		switch item.Status {
		case StatusValid:
			stats.Valid++
		case StatusInvalid, StatusExpired:
			stats.Invalid++
		case StatusRateLimited, StatusQuotaExceeded:
			stats.RateLimited++
		case StatusFormatError:
			stats.FormatErrors++
		case StatusError:
			stats.Errors++
		default:
			stats.Unknown++
		}
	}

	if total > 0 {
		stats.Progress = float64(stats.Completed) / float64(total) * 100
	}
	if stats.Completed > 0 {
		stats.AverageResponseTime = float64(totalTime) / float64(stats.Completed)
		stats.SuccessRate = float64(stats.Valid) / float64(stats.Completed) * 100
	}
	return stats
}
