// 文件: pkg/perps/index.go
// 强平候选索引
//
// 【用途】
// 强平是摇柄操作，活性靠外部机器人；机器人不该全表扫描持仓，
// 这里按风险等级维护内存索引，行情每动一次引擎就刷新受影响的持仓
//
// 【等级划分】以维持保证金率为基准
//   Critical: 保证金率 < 维持率       (已可强平)
//   Danger:   保证金率 < 维持率 × 1.5
//   Warning:  保证金率 < 维持率 × 3
//   Safe:     其余，不入索引

package perps

import (
	"context"
	"sync"
)

type RiskLevel int8

const (
	RiskSafe RiskLevel = iota
	RiskWarning
	RiskDanger
	RiskCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskWarning:
		return "WARNING"
	case RiskDanger:
		return "DANGER"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "SAFE"
	}
}

// RiskEntry 索引条目
type RiskEntry struct {
	PositionID int64
	Mint       string
	Owner      string
	RatioBps   int64
	Level      RiskLevel
}

// RiskIndex 按等级分桶的强平候选索引
type RiskIndex struct {
	mu      sync.RWMutex
	entries map[int64]*RiskEntry
}

func NewRiskIndex() *RiskIndex {
	return &RiskIndex{entries: make(map[int64]*RiskEntry)}
}

// classify 保证金率 → 风险等级
func classify(ratioBps int64, maintenanceBps uint16) RiskLevel {
	maint := int64(maintenanceBps)
	switch {
	case ratioBps < maint:
		return RiskCritical
	case ratioBps < maint*3/2:
		return RiskDanger
	case ratioBps < maint*3:
		return RiskWarning
	default:
		return RiskSafe
	}
}

// Update 刷新持仓的风险档位，Safe 档直接出索引
func (idx *RiskIndex) Update(positionID int64, mint, owner string, ratioBps int64, maintenanceBps uint16) {
	level := classify(ratioBps, maintenanceBps)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if level == RiskSafe {
		delete(idx.entries, positionID)
		return
	}
	idx.entries[positionID] = &RiskEntry{
		PositionID: positionID,
		Mint:       mint,
		Owner:      owner,
		RatioBps:   ratioBps,
		Level:      level,
	}
}

// Remove 持仓关闭后出索引
func (idx *RiskIndex) Remove(positionID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, positionID)
}

// Candidates 指定等级及以上的候选，机器人从 Critical 扫起
func (idx *RiskIndex) Candidates(minLevel RiskLevel) []RiskEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []RiskEntry
	for _, e := range idx.entries {
		if e.Level >= minLevel {
			out = append(out, *e)
		}
	}
	return out
}

// Len 索引内条目数
func (idx *RiskIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// RefreshRisk 风险重扫摇柄: 按最新标记价重算一个市场全部持仓的档位
// 行情只在撮合/资金费时动，持仓本身不动，索引要靠重扫跟上
func (e *Engine) RefreshRisk(ctx context.Context, mint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.repo.GetMarket(ctx, mint)
	if err != nil {
		return err
	}
	positions, err := e.repo.ListPositionsByMint(ctx, mint)
	if err != nil {
		return err
	}
	for _, p := range positions {
		e.reindexPosition(m, p)
	}
	return nil
}
