package ps

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

func CPUStatus() (CPU, error) {
	list, err := cpu.Percent(time.Millisecond*50, false)
	if err != nil {
		return CPU{}, err
	}
	c := CPU{}
	if len(list) > 0 {
		c.Percent = list[0]
	}
	return c, nil
}

func MemoryStatus() (Memory, error) {
	memory, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, err
	}
	swapMemory, err := mem.SwapMemory()
	if err != nil {
		return Memory{}, err
	}

	return Memory{
		Total:       memory.Total,
		Used:        memory.Used,
		UsedPercent: memory.UsedPercent,

		SwapTotal:       swapMemory.Total,
		SwapUsed:        swapMemory.Used,
		SwapUsedPercent: swapMemory.UsedPercent,
	}, nil
}

// ProcessStatus reports the resident memory of this process.
func ProcessStatus() (Process, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Process{}, err
	}
	m, err := p.MemoryInfo()
	if err != nil {
		return Process{}, err
	}
	n, err := p.NumThreads()
	if err != nil {
		return Process{}, err
	}
	return Process{
		RSS:      m.RSS,
		RSSHuman: humanize.IBytes(m.RSS),
		Threads:  n,
	}, nil
}

// HostStatus collects everything above. Parts that fail are left zero.
func HostStatus() Status {
	var s Status
	s.CPU, _ = CPUStatus()
	s.Memory, _ = MemoryStatus()
	s.Process, _ = ProcessStatus()
	return s
}

type CPU struct {
	Percent float64 `json:"percent"`
}

type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`

	SwapTotal       uint64  `json:"swapTotal"`
	SwapUsed        uint64  `json:"swapUsed"`
	SwapUsedPercent float64 `json:"swapUsedPercent"`
}

type Process struct {
	RSS      uint64 `json:"rss"`
	RSSHuman string `json:"rssHuman"`
	Threads  int32  `json:"threads"`
}

type Status struct {
	CPU     CPU     `json:"cpu"`
	Memory  Memory  `json:"memory"`
	Process Process `json:"process"`
}
