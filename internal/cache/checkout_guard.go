package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// 结算在途锁：同一用户同一时刻只允许一笔结算进行
// Redis 不可用时退化为进程内锁

const checkoutGuardTTL = 2 * time.Minute

var localCheckoutGuard = struct {
	mu      sync.Mutex
	expires map[uint]time.Time
}{expires: make(map[uint]time.Time)}

func checkoutGuardKey(userID uint) string {
	return fmt.Sprintf("checkout:inflight:%d", userID)
}

// AcquireCheckoutGuard 尝试获取结算锁，返回是否获取成功
func AcquireCheckoutGuard(ctx context.Context, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	if Enabled() {
		return redisClient.SetNX(ctx, buildKey(checkoutGuardKey(userID)), 1, checkoutGuardTTL).Result()
	}

	localCheckoutGuard.mu.Lock()
	defer localCheckoutGuard.mu.Unlock()
	now := time.Now()
	if deadline, ok := localCheckoutGuard.expires[userID]; ok && deadline.After(now) {
		return false, nil
	}
	localCheckoutGuard.expires[userID] = now.Add(checkoutGuardTTL)
	return true, nil
}

// ReleaseCheckoutGuard 释放结算锁
func ReleaseCheckoutGuard(ctx context.Context, userID uint) error {
	if userID == 0 {
		return nil
	}
	if Enabled() {
		return Del(ctx, checkoutGuardKey(userID))
	}

	localCheckoutGuard.mu.Lock()
	defer localCheckoutGuard.mu.Unlock()
	delete(localCheckoutGuard.expires, userID)
	return nil
}
