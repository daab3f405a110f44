package retry

import (
	"time"
)

// Do 以固定间隔重试 fn, 用于吸收数据库瞬时写入失败
func Do(attempts int, interval time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(interval)
		}
	}
	return err
}
