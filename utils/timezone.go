package utils

import (
	"time"
)

// GlobalLocation 全局时区，由配置的 system.timezone 决定
var GlobalLocation = time.UTC

// SetLocation 按名称设置全局时区
// tzdata 缺失时对东8区退化为固定偏移，其他名称报错并保持原时区
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == "UTC+8" || name == "Asia/Shanghai" {
			GlobalLocation = time.FixedZone("UTC+8", 8*60*60)
			return nil
		}
		return err
	}
	GlobalLocation = loc
	return nil
}

// NowUTC 当前UTC时间，所有落库时间戳统一用它
func NowUTC() time.Time {
	return time.Now().UTC()
}

// Now 当前全局时区的时间，仅用于展示
func Now() time.Time {
	return time.Now().In(GlobalLocation)
}
