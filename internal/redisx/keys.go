package redisx

import (
	"fmt"
	"time"
)

const (
	// order_status:{order_id} -> CachedStatus JSON
	keyOrderStatus = "order_status:%s"
	// dedup:{scope}:{event_id} -> 1
	keyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func StatusKey(orderID string) string { return fmt.Sprintf(keyOrderStatus, orderID) }

func DedupKey(scope, eventID string) string { return fmt.Sprintf(keyDedup, scope, eventID) }
