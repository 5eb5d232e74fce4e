package stats

import (
	"regexp"
	"strings"
	"time"
)

// GPUStats represents GPU statistics
type GPUStats struct {
	Timestamp time.Time `json:"timestamp"`
	GPUs      []GPU     `json:"gpus"`
}

// GPU represents a single GPU's metrics
type GPU struct {
	Index       int     `json:"index"`
	Name        string  `json:"name"`
	UUID        string  `json:"uuid"`
	Product     string  `json:"product,omitempty"`
	Utilization float64 `json:"utilization_percent"`
	MemoryUsed  int64   `json:"memory_used_mb"`
	MemoryTotal int64   `json:"memory_total_mb"`
	MemoryUtil  float64 `json:"memory_util_percent"`
	Temperature int     `json:"temperature_c"`
	PowerDraw   float64 `json:"power_draw_w"`
	PowerLimit  float64 `json:"power_limit_w"`
	FanSpeed    int     `json:"fan_speed_percent"`
	EncoderUtil int     `json:"encoder_util_percent"`
	DecoderUtil int     `json:"decoder_util_percent"`
}

var invalidLabelChars = regexp.MustCompile(`[^-A-Za-z0-9_.]`)

// ProductLabelValue converts an NVML device name into the value GPU feature
// discovery advertises under the nvidia.com/gpu.product node label, e.g.
// "NVIDIA GeForce RTX 3090" becomes "NVIDIA-GeForce-RTX-3090".
func ProductLabelValue(name string) string {
	value := strings.Join(strings.Fields(name), "-")
	return invalidLabelChars.ReplaceAllString(value, "")
}
