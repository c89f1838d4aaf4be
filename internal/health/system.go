package health

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryStats 内存采样结果
type MemoryStats struct {
	UsedPercent float64
	TotalGB     float64
	AvailableGB float64
}

// DiskStats 磁盘采样结果
type DiskStats struct {
	UsedPercent float64
	TotalGB     float64
	FreeGB      float64
}

// Sampler 系统资源采样器。抽象出来便于在测试中替换为固定值。
type Sampler interface {
	// CPUPercent 采样 CPU 使用率。采样会阻塞约 1 秒取平均值。
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryStats, error)
	Disk(ctx context.Context, path string) (DiskStats, error)
}

// GopsutilSampler 基于 gopsutil 的默认采样器
type GopsutilSampler struct{}

func (GopsutilSampler) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

func (GopsutilSampler) Memory(ctx context.Context) (MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStats{}, err
	}
	return MemoryStats{
		UsedPercent: vm.UsedPercent,
		TotalGB:     roundGB(vm.Total),
		AvailableGB: roundGB(vm.Available),
	}, nil
}

func (GopsutilSampler) Disk(ctx context.Context, path string) (DiskStats, error) {
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskStats{}, err
	}
	return DiskStats{
		UsedPercent: du.UsedPercent,
		TotalGB:     roundGB(du.Total),
		FreeGB:      roundGB(du.Free),
	}, nil
}

// roundGB 字节转 GB，保留两位小数。
func roundGB(bytes uint64) float64 {
	return math.Round(float64(bytes)/(1<<30)*100) / 100
}
