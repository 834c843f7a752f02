// 文件: pkg/ids/snowflake.go

// Package ids 进程内唯一 ID 发号
// 底层是 github.com/bwmarrin/snowflake，成交 ID、账本流水 ID、事件 ID 共用一个节点。
// 节点号取值 0-1023，多实例部署时每个进程配不同节点号，否则 ID 会撞车；
// 不显式 Init 时落在节点 0，单进程场景够用。
package ids

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node     *snowflake.Node
	initOnce sync.Once
)

// Init 绑定节点号，只有第一次调用生效
func Init(nodeID int64) error {
	var err error
	initOnce.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// Next 取下一个 ID，未初始化时懒加载节点 0
func Next() int64 {
	if node == nil {
		Init(0)
	}
	return node.Generate().Int64()
}
